// Copyright (C) 2019-2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/ava-labs/keymanager/relay"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "relay",
		Short: "Signs and verifies relay call messages",
	}

	sign := &cobra.Command{
		Use:   "sign",
		Short: "Signs a relay call message with a controller key",
		RunE:  signFunc,
	}
	AddMessageFlags(sign.Flags())
	sign.Flags().String(PrivateKeyKey, "", "Hex encoded secp256k1 private key of the signer")

	recoverCmd := &cobra.Command{
		Use:   "recover",
		Short: "Prints the controller that signed a relay call message",
		RunE:  recoverFunc,
	}
	AddMessageFlags(recoverCmd.Flags())
	recoverCmd.Flags().String(SignatureKey, "", "Hex encoded 65 byte signature")

	c.AddCommand(sign, recoverCmd)
	return c
}

func signFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	config, err := ParseMessageFlags(flags)
	if err != nil {
		return err
	}
	key, err := getPrivateKey(flags)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", PrivateKeyKey, err)
	}

	sig, err := relay.SignMessage(key, config.KeyManager, &config.Message)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.OutOrStdout(), "signer: %s\nnonce: %s\nvalidityTimestamps: %s\nsignature: %s\n",
		crypto.PubkeyToAddress(key.PublicKey),
		config.Message.Nonce.Hex(),
		config.Message.ValidityTimestamps.Hex(),
		hexutil.Encode(sig),
	)
	return err
}

func recoverFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	config, err := ParseMessageFlags(flags)
	if err != nil {
		return err
	}
	sig, err := getSignature(flags)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", SignatureKey, err)
	}

	hash, err := config.Message.Hash(config.KeyManager)
	if err != nil {
		return err
	}
	signer, err := relay.EthRecoverer{}.Recover(hash, sig)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.OutOrStdout(), signer)
	return err
}
