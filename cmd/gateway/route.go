package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Inspect service routes",
}

var routeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := openAdmin(cmd)
		if err != nil {
			return err
		}
		routes, err := admin.ListRoutes()
		if err != nil {
			return fmt.Errorf("list routes: %w", err)
		}
		if len(routes) == 0 {
			fmt.Println("No routes found")
			return nil
		}

		fmt.Printf("%-18s %-24s %-8s %s\n", "SERVICE", "BACKEND", "PORT", "DOMAINS")
		for _, r := range routes {
			fmt.Printf("%-18s %-24s %-8d %v\n", r.ServiceCN, r.BackendHost, r.BackendPort, r.Domains)
		}
		return nil
	},
}

func init() {
	routeCmd.AddCommand(routeListCmd)
}
