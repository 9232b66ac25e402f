package domain

// MaterialType tags a category of study material within a subject.
type MaterialType string

const (
	MaterialSyllabus       MaterialType = "SYLLABUS"
	MaterialLabManual      MaterialType = "LAB_MANUAL"
	MaterialNotes          MaterialType = "NOTES"
	MaterialAssignment     MaterialType = "ASSIGNMENT"
	MaterialPreviousPapers MaterialType = "PREVIOUS_PAPERS"
	MaterialVideos         MaterialType = "VIDEOS"
	MaterialOthers         MaterialType = "OTHERS"
)

var materialDisplayNames = map[MaterialType]string{
	MaterialSyllabus:       "Syllabus",
	MaterialLabManual:      "Lab Manual",
	MaterialNotes:          "Notes",
	MaterialAssignment:     "Assignment",
	MaterialPreviousPapers: "Previous Papers",
	MaterialVideos:         "Videos",
	MaterialOthers:         "Others",
}

// MaterialTypes lists the known tags in display order.
func MaterialTypes() []MaterialType {
	return []MaterialType{
		MaterialSyllabus,
		MaterialLabManual,
		MaterialNotes,
		MaterialAssignment,
		MaterialPreviousPapers,
		MaterialVideos,
		MaterialOthers,
	}
}

// ParseMaterialType resolves a route tag to a known material type.
func ParseMaterialType(tag string) (MaterialType, bool) {
	mt := MaterialType(tag)
	_, ok := materialDisplayNames[mt]
	return mt, ok
}

// DisplayName returns the UI label, or the raw tag for unknown types.
func (m MaterialType) DisplayName() string {
	if name, ok := materialDisplayNames[m]; ok {
		return name
	}
	return string(m)
}
