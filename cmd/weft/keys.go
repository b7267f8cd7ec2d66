package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"weftlabs/weft/pkg/config"
	"weftlabs/weft/pkg/identity"
)

var keysFlags struct {
	output string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage device keys",
	Long: `Generate and inspect the Ed25519 device signing key.

Every command a device appends to the graph is signed with its device key.
Other devices verify the signature against the author's public key, which
must be present in their trusted keys directory. Author identifiers are
derived from the public key, so a key file cannot be renamed into another
identity.

Examples:
  # Generate this device's key at the configured path
  weft keys generate

  # Generate at an explicit path
  weft keys generate --output /etc/weft/device.key

  # Show this device's author identifier and public key
  weft keys show`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the device signing key",
	Long: `Generate a new Ed25519 signing key for this device.

The key is written with mode 0600 and never leaves the device. The printed
public key is what you distribute: save it into each peer's trusted keys
directory as <author-id>.pub so they accept this device's commands.`,
	RunE: generateKey,
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show device identity and trusted authors",
	RunE:  showKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd, keysShowCmd)

	keysGenerateCmd.Flags().StringVarP(&keysFlags.output, "output", "o", "", "key file path (defaults to the configured key_path)")
}

func keyPathFromConfig() (string, string, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return "", "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.Identity.KeyPath, cfg.Identity.TrustedKeysDir, nil
}

func generateKey(cmd *cobra.Command, args []string) error {
	path := keysFlags.output
	if path == "" {
		var err error
		path, _, err = keyPathFromConfig()
		if err != nil {
			return err
		}
	}

	author, err := identity.GenerateKeyFile(path)
	if err != nil {
		return err
	}

	keys, err := identity.LoadKeystore(path, "")
	if err != nil {
		return err
	}

	fmt.Printf("✓ Device key written to %s\n", path)
	fmt.Printf("Author ID:  %s\n", author)
	fmt.Printf("Public key: %s\n", hex.EncodeToString(keys.PublicKey()))
	fmt.Printf("\nShare the public key with peers: save it in their trusted keys\ndirectory as %s.pub\n", author)
	return nil
}

func showKeys(cmd *cobra.Command, args []string) error {
	keyPath, trustedDir, err := keyPathFromConfig()
	if err != nil {
		return err
	}

	keys, err := identity.LoadKeystore(keyPath, trustedDir)
	if err != nil {
		return err
	}

	fmt.Printf("Author ID:  %s\n", keys.CurrentAuthor())
	fmt.Printf("Public key: %s\n", hex.EncodeToString(keys.PublicKey()))
	fmt.Println("\nTrusted authors:")
	for _, author := range keys.TrustedAuthors() {
		marker := ""
		if author == keys.CurrentAuthor() {
			marker = " (this device)"
		}
		fmt.Printf("  %s%s\n", author, marker)
	}
	return nil
}
