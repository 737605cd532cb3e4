package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Manage client and service endpoints",
}

var endpointCreateClientCmd = &cobra.Command{
	Use:   "create-client NAME",
	Short: "Issue credentials for a new client endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")

		admin, err := openAdmin(cmd)
		if err != nil {
			return err
		}

		cn, bundle, err := admin.CreateClient(args[0], platform)
		if err != nil {
			return fmt.Errorf("create client: %w", err)
		}

		fmt.Printf("✓ client endpoint created: %s\n", cn)
		return writeBundleFile(cmd, cn, bundle)
	},
}

var endpointCreateServiceCmd = &cobra.Command{
	Use:   "create-service NAME",
	Short: "Issue credentials for a new service endpoint, its route, and its zones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")
		backendHost, _ := cmd.Flags().GetString("backend-host")
		backendPort, _ := cmd.Flags().GetInt("backend-port")
		domains, _ := cmd.Flags().GetStringSlice("domains")

		if backendHost == "" {
			return fmt.Errorf("--backend-host is required")
		}
		if len(domains) == 0 {
			return fmt.Errorf("at least one --domains entry is required")
		}

		admin, err := openAdmin(cmd)
		if err != nil {
			return err
		}

		cn, bundle, err := admin.CreateService(args[0], platform, backendHost, backendPort, domains, nil)
		if err != nil {
			return fmt.Errorf("create service: %w", err)
		}

		fmt.Printf("✓ service endpoint created: %s\n", cn)
		fmt.Printf("  backend: %s:%d\n", backendHost, backendPort)
		fmt.Printf("  domains: %v\n", domains)
		return writeBundleFile(cmd, cn, bundle)
	},
}

var endpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := openAdmin(cmd)
		if err != nil {
			return err
		}

		endpoints, err := admin.ListEndpoints()
		if err != nil {
			return fmt.Errorf("list endpoints: %w", err)
		}
		if len(endpoints) == 0 {
			fmt.Println("No endpoints found")
			return nil
		}

		fmt.Printf("%-16s %-10s %-20s %-14s %s\n", "CN", "ROLE", "NAME", "PLATFORM", "DOMAINS")
		for _, e := range endpoints {
			fmt.Printf("%-16s %-10s %-20s %-14s %v\n", e.CN, e.Role, e.Name, e.Platform, e.Domains)
		}
		return nil
	},
}

var endpointDeleteCmd = &cobra.Command{
	Use:   "delete CN",
	Short: "Delete an endpoint and cascade its references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := openAdmin(cmd)
		if err != nil {
			return err
		}
		if err := admin.DeleteEndpoint(args[0]); err != nil {
			return fmt.Errorf("delete endpoint: %w", err)
		}
		fmt.Printf("✓ endpoint deleted: %s\n", args[0])
		return nil
	},
}

func init() {
	endpointCreateClientCmd.Flags().String("platform", "linux-amd64", "Target platform for the bundled endpoint binary")
	endpointCreateClientCmd.Flags().String("out", "", "Output path for the deployment bundle (default <cn>.zip)")

	endpointCreateServiceCmd.Flags().String("platform", "linux-amd64", "Target platform for the bundled endpoint binary")
	endpointCreateServiceCmd.Flags().String("backend-host", "", "Real backend host, never revealed to clients")
	endpointCreateServiceCmd.Flags().Int("backend-port", 0, "Real backend port")
	endpointCreateServiceCmd.Flags().StringSlice("domains", nil, "Private zone names this service answers for")
	endpointCreateServiceCmd.Flags().String("out", "", "Output path for the deployment bundle (default <cn>.zip)")

	endpointCmd.AddCommand(endpointCreateClientCmd)
	endpointCmd.AddCommand(endpointCreateServiceCmd)
	endpointCmd.AddCommand(endpointListCmd)
	endpointCmd.AddCommand(endpointDeleteCmd)
}
