package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/KevinKickass/OpenPoolCore/internal/auth"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password for auth.users in config.yaml",
	Long: `Read a password from the terminal (or one line from stdin when it is
not a terminal) and print its argon2id hash.`,
	Args: cobra.NoArgs,
	RunE: runHashPassword,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Machine token commands",
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a machine token and its hash for auth.machine_tokens",
	Args:  cobra.NoArgs,
	RunE:  runTokenGenerate,
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenGenerateCmd)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	password, err := readPassword(cmd)
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	hash, err := auth.NewPasswordHasher().HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "Enter password: ")
	passwordBytes, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	confirmBytes, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password confirmation: %w", err)
	}
	if string(passwordBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(passwordBytes), nil
}

func runTokenGenerate(cmd *cobra.Command, args []string) error {
	token, hash, err := auth.NewMachineTokenGenerator().GenerateMachineToken()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Token: %s\n", token)
	fmt.Fprintf(out, "Hash:  %s\n", hash)
	fmt.Fprintln(out, "Store the hash in auth.machine_tokens. The token is shown only once.")
	return nil
}
