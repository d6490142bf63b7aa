package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidgen/internal/credentials"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored API credential",
	}
	cmd.AddCommand(newAuthSetCmd(), newAuthShowCmd(), newAuthClearCmd())
	return cmd
}

func newAuthSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <api-key>",
		Short: "Store the API key used for bearer auth",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signalContext()
			defer stop()

			if err := rt.creds.SetToken(ctx, credentials.ProviderVideoAPI, args[0]); err != nil {
				return err
			}
			fmt.Println("Credential stored.")
			return nil
		},
	}
}

func newAuthShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show which credential would be used, masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			key, ok := credentials.NewSource(rt.cfg.APIKey, rt.creds).APIKey()
			if !ok {
				fmt.Println("No credential configured.")
				return nil
			}
			fmt.Println(maskKey(key))
			return nil
		},
	}
}

func newAuthClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signalContext()
			defer stop()

			if err := rt.creds.DeleteToken(ctx, credentials.ProviderVideoAPI); err != nil {
				return err
			}
			fmt.Println("Credential cleared.")
			return nil
		},
	}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
