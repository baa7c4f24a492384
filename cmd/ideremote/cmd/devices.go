package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var (
	deviceName   string
	devicesForce bool
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage approved devices",
	Long: `Approved devices connect without a prompt on this machine. Devices are
approved from the prompt shown by 'ideremote start' or ahead of time with
'ideremote devices approve'.`,
}

var devicesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List approved devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		devices, err := store.Devices()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(devices) == 0 {
			fmt.Fprintln(out, dim("No approved devices."))
			return nil
		}

		table := newTable(out, "Device ID", "Name", "Approved")
		for _, d := range devices {
			name := d.Name
			if name == "" {
				name = "-"
			}
			table.Append([]string{d.ID, name, d.ApprovedAt.Local().Format(time.DateTime)})
		}
		table.Render()
		return nil
	},
}

var devicesApproveCmd = &cobra.Command{
	Use:   "approve <device-id>",
	Short: "Approve a device ahead of its first connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.ApproveDevice(args[0], deviceName); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("Approved"), cyan(args[0]))
		return nil
	},
}

var devicesRevokeCmd = &cobra.Command{
	Use:     "revoke <device-id>",
	Aliases: []string{"rm"},
	Short:   "Forget one approved device",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		removed, err := store.RevokeDevice(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("device %q is not approved", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", yellow("Revoked"), cyan(args[0]))
		return nil
	},
}

var devicesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every approved device",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !devicesForce {
			ok, err := confirm("Forget every approved device")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.ClearDevices(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), yellow("All approved devices were forgotten."))
		return nil
	},
}

// confirm asks a yes/no question. Ctrl+C answers no.
func confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func init() {
	devicesApproveCmd.Flags().StringVar(&deviceName, "name", "", "display name for the device")
	devicesClearCmd.Flags().BoolVarP(&devicesForce, "yes", "y", false, "do not ask for confirmation")

	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesApproveCmd)
	devicesCmd.AddCommand(devicesRevokeCmd)
	devicesCmd.AddCommand(devicesClearCmd)
	rootCmd.AddCommand(devicesCmd)
}
