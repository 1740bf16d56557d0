// Package main prints a bootstrap token for a candidate controller to
// present in step 1 of the admission handshake. The token is
// deterministic from the shared bootstrap secret and the candidate's
// (temp_id, region, role) — this command never contacts a running
// controller, it only computes what the candidate itself would compute.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pdsno.io/controller/internal/admission"
	"pdsno.io/controller/internal/config"
	"pdsno.io/controller/internal/domain"
)

var (
	flagTempID string
	flagRegion string
	flagRole   string
)

var rootCmd = &cobra.Command{
	Use:   "bootstraptoken",
	Short: "Print a bootstrap token for a candidate controller",
	Long: `bootstraptoken computes the HMAC bootstrap token a candidate
controller must present in its VALIDATION_REQUEST. Run it on an operator
workstation using the same bootstrap secret configured on the parent, then
paste the resulting temp_id and token into the candidate's own bootstrap
configuration.`,
	RunE: runBootstrapToken,
}

func init() {
	rootCmd.Flags().StringVar(&flagTempID, "temp-id", "", "candidate temp_id (generated if omitted)")
	rootCmd.Flags().StringVar(&flagRegion, "region", "", "candidate region (empty for a global controller)")
	rootCmd.Flags().StringVar(&flagRole, "role", "", "candidate role: global, regional, or local")
	_ = rootCmd.MarkFlagRequired("role")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bootstraptoken error: %v\n", err)
		os.Exit(1)
	}
}

func runBootstrapToken(cmd *cobra.Command, args []string) error {
	role := domain.ControllerRole(flagRole)
	switch role {
	case domain.RoleGlobal, domain.RoleRegional, domain.RoleLocal:
	default:
		return fmt.Errorf("--role must be one of global, regional, local, got %q", flagRole)
	}
	if role != domain.RoleGlobal && flagRegion == "" {
		return fmt.Errorf("--region is required for role %q", flagRole)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Admission.BootstrapSecret == "" {
		return fmt.Errorf("admission.bootstrap_secret is not configured")
	}

	tempID := flagTempID
	if tempID == "" {
		tempID, err = randomTempID()
		if err != nil {
			return fmt.Errorf("generate temp_id: %w", err)
		}
	}

	token := admission.BootstrapToken([]byte(cfg.Admission.BootstrapSecret), tempID, flagRegion, role)

	fmt.Printf("temp_id:          %s\n", tempID)
	fmt.Printf("region:           %s\n", flagRegion)
	fmt.Printf("role:             %s\n", role)
	fmt.Printf("bootstrap_token:  %s\n", token)
	return nil
}

func randomTempID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "temp-" + hex.EncodeToString(buf), nil
}
