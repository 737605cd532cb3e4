package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/ztgateway/pkg/adminapi"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a declarative manifest of endpoints",
	Long: `Apply a YAML manifest describing client and service endpoints and
zone authorizations against the gateway's local store.

Examples:
  # Issue a service endpoint and its route/zones
  ztgateway apply -f payments-service.yaml

  # Grant an existing endpoint access to a zone
  ztgateway apply -f grant-reporting-access.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// resource is a generic manifest entry: one Kind per document, with a
// kind-specific spec map decoded on demand.
type resource struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   resourceMetadata       `yaml:"metadata"`
	Spec       map[string]interface{} `yaml:"spec"`
}

type resourceMetadata struct {
	Name string `yaml:"name"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))

	admin, err := openAdmin(cmd)
	if err != nil {
		return err
	}

	for {
		var res resource
		if err := decoder.Decode(&res); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("parse manifest: %w", err)
		}
		if res.Kind == "" {
			continue
		}

		switch res.Kind {
		case "Client":
			if err := applyClient(cmd, admin, &res); err != nil {
				return err
			}
		case "Service":
			if err := applyServiceResource(cmd, admin, &res); err != nil {
				return err
			}
		case "Authorization":
			if err := applyAuthorization(admin, &res); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported resource kind: %s", res.Kind)
		}
	}

	return nil
}

func applyClient(cmd *cobra.Command, admin *adminapi.API, res *resource) error {
	name := res.Metadata.Name
	platform := getString(res.Spec, "platform", "linux-amd64")

	fmt.Printf("Creating client: %s\n", name)
	cn, bundle, err := admin.CreateClient(name, platform)
	if err != nil {
		return fmt.Errorf("create client %s: %w", name, err)
	}
	fmt.Printf("✓ client endpoint created: %s\n", cn)
	return writeBundleFile(cmd, cn, bundle)
}

func applyServiceResource(cmd *cobra.Command, admin *adminapi.API, res *resource) error {
	name := res.Metadata.Name
	platform := getString(res.Spec, "platform", "linux-amd64")
	backendHost := getString(res.Spec, "backendHost", "")
	backendPort := getInt(res.Spec, "backendPort", 0)
	domains := getStringSlice(res.Spec, "domains")

	if backendHost == "" {
		return fmt.Errorf("service %s: backendHost is required", name)
	}
	if len(domains) == 0 {
		return fmt.Errorf("service %s: at least one domain is required", name)
	}

	fmt.Printf("Creating service: %s\n", name)
	cn, bundle, err := admin.CreateService(name, platform, backendHost, backendPort, domains, nil)
	if err != nil {
		return fmt.Errorf("create service %s: %w", name, err)
	}
	fmt.Printf("✓ service endpoint created: %s (backend=%s:%d, domains=%v)\n", cn, backendHost, backendPort, domains)
	return writeBundleFile(cmd, cn, bundle)
}

func applyAuthorization(admin *adminapi.API, res *resource) error {
	zone := getString(res.Spec, "zone", "")
	cn := getString(res.Spec, "cn", "")
	if zone == "" || cn == "" {
		return fmt.Errorf("authorization %s: zone and cn are both required", res.Metadata.Name)
	}
	if err := admin.AuthorizeEndpoint(zone, cn); err != nil {
		return fmt.Errorf("authorize %s on zone %s: %w", cn, zone, err)
	}
	fmt.Printf("✓ %s authorized on zone %s\n", cn, zone)
	return nil
}

func getString(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return defaultValue
}

func getInt(m map[string]interface{}, key string, defaultValue int) int {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case float64:
			return int(val)
		}
	}
	return defaultValue
}

func getStringSlice(m map[string]interface{}, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out
}
