// Device pairing. Vault membership itself is already gated by passphrase
// knowledge, so pairing here is a human-facing identity confirmation
// layered on top of an ordinary hello, not a second access check.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/CalvinMagezi/vaultsync/internal/config"
	"github.com/CalvinMagezi/vaultsync/internal/crypto"
	"github.com/CalvinMagezi/vaultsync/internal/protocol"
)

var pairTimeout time.Duration

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair a new device into this vault",
}

var pairGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a pairing code on a new, not-yet-paired device",
	Long: `generate joins the vault's relay room using this device's passphrase-derived
vault id, displays a 6-digit pairing code, and waits for an already-paired
device to confirm it with 'vaultsync pair confirm'.`,
	RunE: runPairGenerate,
}

var pairConfirmCmd = &cobra.Command{
	Use:   "confirm <code>",
	Short: "Approve a new device using the code it displayed",
	Args:  cobra.ExactArgs(1),
	RunE:  runPairConfirm,
}

func init() {
	pairCmd.PersistentFlags().DurationVar(&pairTimeout, "timeout", 2*time.Minute, "How long to wait for the other side")
	pairCmd.AddCommand(pairGenerateCmd)
	pairCmd.AddCommand(pairConfirmCmd)
}

func runPairGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), pairTimeout)
	defer cancel()

	vc, err := openVaultContext(ctx, flagVaultRoot, false)
	if err != nil {
		return err
	}

	conn, err := dialRelay(ctx, vc.cfg.RelayURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := sendHello(conn, vc, vc.cfg.DeviceToken); err != nil {
		return err
	}
	token, err := awaitHelloAck(ctx, conn)
	if err != nil {
		return err
	}

	code, codeHash, err := crypto.GeneratePairingCode()
	if err != nil {
		return fmt.Errorf("vaultsync: generate pairing code: %w", err)
	}

	fmt.Printf("Pairing code: %s\n", code)
	fmt.Println("Enter this code on an already-paired device within the timeout window:")
	fmt.Printf("  vaultsync pair confirm %s\n", code)

	req := &protocol.PairRequest{
		Type:            protocol.TypePairRequest,
		DeviceID:        vc.deviceID,
		PairingCodeHash: codeHash,
		DeviceName:      vc.cfg.DeviceName,
	}
	raw, err := protocol.EncodePlaintext(req)
	if err != nil {
		return fmt.Errorf("vaultsync: encode pair-request: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("vaultsync: send pair-request: %w", err)
	}

	if err := awaitPairConfirm(ctx, conn, vc.deviceID); err != nil {
		return err
	}

	vc.cfg.DeviceToken = token
	if err := config.Save(flagVaultRoot, vc.cfg); err != nil {
		return err
	}

	fmt.Println("paired.")
	return nil
}

func runPairConfirm(cmd *cobra.Command, args []string) error {
	code := args[0]
	codeHash := crypto.HashPairingCode(code)

	ctx, cancel := context.WithTimeout(cmd.Context(), pairTimeout)
	defer cancel()

	vc, err := openVaultContext(ctx, flagVaultRoot, false)
	if err != nil {
		return err
	}

	conn, err := dialRelay(ctx, vc.cfg.RelayURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := sendHello(conn, vc, vc.cfg.DeviceToken); err != nil {
		return err
	}
	if _, err := awaitHelloAck(ctx, conn); err != nil {
		return err
	}

	req, err := awaitMatchingPairRequest(ctx, conn, codeHash)
	if err != nil {
		return err
	}

	approved, err := promptApproval(req)
	if err != nil {
		return err
	}

	confirm := &protocol.PairConfirm{
		Type:     protocol.TypePairConfirm,
		DeviceID: req.DeviceID,
		VaultID:  vc.vaultID,
		Approved: approved,
	}
	raw, err := protocol.EncodePlaintext(confirm)
	if err != nil {
		return fmt.Errorf("vaultsync: encode pair-confirm: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("vaultsync: send pair-confirm: %w", err)
	}

	if !approved {
		fmt.Printf("denied device %q (%s)\n", req.DeviceName, req.DeviceID)
		return nil
	}
	fmt.Printf("approved device %q (%s)\n", req.DeviceName, req.DeviceID)
	return nil
}

// promptApproval shows the operator a confirm form for the device that
// presented the matching code. When stdin is not a terminal (scripts, CI)
// the code match itself is taken as the approval — the code was typed in,
// so the operator has already seen it on the new device's screen.
func promptApproval(req *protocol.PairRequest) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return true, nil
	}

	approved := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Approve device %q?", req.DeviceName)).
				Description(fmt.Sprintf("Device %s presented the matching pairing code.", req.DeviceID)).
				Affirmative("Approve").
				Negative("Deny").
				Value(&approved),
		),
	)
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("vaultsync: pairing prompt: %w", err)
	}
	return approved, nil
}
