package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/artpar/actionkit/bootstrap"
	"github.com/artpar/actionkit/core/action"
	"github.com/spf13/cobra"
)

var routesJSON bool

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List registered routes",
	Long: `List every registered route with its view and resolved filters.

Filters are shown per pipeline stage in execution order.

Examples:
  actionkit routes
  actionkit routes --json`,
	RunE: runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)

	routesCmd.Flags().BoolVar(&routesJSON, "json", false, "output as JSON")
}

type routeInfo struct {
	Method  string              `json:"method"`
	Pattern string              `json:"pattern"`
	Name    string              `json:"name"`
	View    string              `json:"view"`
	Filters map[string][]string `json:"filters"`
}

func runRoutes(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(bootstrap.Options{ConfigPath: configPath(), LogOutput: io.Discard})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}
	defer app.Shutdown()

	categories := []action.Category{
		action.Authentication, action.Authorization, action.Resource,
		action.Action, action.Exception, action.Result,
	}
	var routes []routeInfo
	for _, d := range app.Registry.Descriptors() {
		info := routeInfo{
			Method:  d.Method(),
			Pattern: d.Pattern(),
			Name:    d.Name(),
			View:    d.View(),
			Filters: map[string][]string{},
		}
		for _, c := range categories {
			if names := d.Worklists().Names(c); len(names) > 0 {
				info.Filters[c.String()] = names
			}
		}
		routes = append(routes, info)
	}

	out := cmd.OutOrStdout()
	if routesJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(routes)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tPATTERN\tNAME\tVIEW\tFILTERS")
	for _, r := range routes {
		var parts []string
		for _, c := range categories {
			if names := r.Filters[c.String()]; len(names) > 0 {
				parts = append(parts, c.String()+"="+strings.Join(names, ","))
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Method, r.Pattern, r.Name, r.View, strings.Join(parts, " "))
	}
	return w.Flush()
}
