// Command routecheck resolves route links and prints their descriptors.
//
//	routecheck 'material_list/5/Physics/NOTES?isDarkMode=true' home
//
// With no arguments it lists the route table.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
)

func main() {
	if len(os.Args) < 2 {
		for _, spec := range domain.RouteSpecs() {
			fmt.Println(spec.Pattern())
		}
		return
	}

	failed := false
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, link := range os.Args[1:] {
		route, err := domain.ParseRoute(link)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", link, err)
			failed = true
			continue
		}
		if err := enc.Encode(struct {
			domain.Route
			Link string `json:"link"`
		}{Route: route, Link: route.String()}); err != nil {
			fmt.Fprintf(os.Stderr, "encode %s: %v\n", link, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
