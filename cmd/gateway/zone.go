package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var zoneCmd = &cobra.Command{
	Use:   "zone",
	Short: "Manage private zone access lists",
}

var zoneAuthorizeCmd = &cobra.Command{
	Use:   "authorize ZONE CN",
	Short: "Grant an endpoint access to a zone",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := openAdmin(cmd)
		if err != nil {
			return err
		}
		if err := admin.AuthorizeEndpoint(args[0], args[1]); err != nil {
			return fmt.Errorf("authorize endpoint: %w", err)
		}
		fmt.Printf("✓ %s authorized on zone %s\n", args[1], args[0])
		return nil
	},
}

var zoneDeauthorizeCmd = &cobra.Command{
	Use:   "deauthorize ZONE CN",
	Short: "Revoke an endpoint's access to a zone",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := openAdmin(cmd)
		if err != nil {
			return err
		}
		if err := admin.DeauthorizeEndpoint(args[0], args[1]); err != nil {
			return fmt.Errorf("deauthorize endpoint: %w", err)
		}
		fmt.Printf("✓ %s deauthorized from zone %s\n", args[1], args[0])
		return nil
	},
}

var zoneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured zones and their access lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, err := openAdmin(cmd)
		if err != nil {
			return err
		}
		zones, err := admin.ListZones()
		if err != nil {
			return fmt.Errorf("list zones: %w", err)
		}
		if len(zones) == 0 {
			fmt.Println("No zones found")
			return nil
		}

		fmt.Printf("%-30s %-18s %s\n", "ZONE", "SERVICE", "AUTHORIZED CNS")
		for _, z := range zones {
			var cns []string
			for cn, ok := range z.AccessList {
				if ok {
					cns = append(cns, cn)
				}
			}
			fmt.Printf("%-30s %-18s %v\n", z.Name, z.ServiceCN, cns)
		}
		return nil
	},
}

func init() {
	zoneCmd.AddCommand(zoneAuthorizeCmd)
	zoneCmd.AddCommand(zoneDeauthorizeCmd)
	zoneCmd.AddCommand(zoneListCmd)
}
