package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"pinscraper/pkg/cookies"
	"pinscraper/pkg/ui"
)

var (
	cookieProfile string
	promptHeader  bool
)

// cookiesCmd represents the cookies command
var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Manage stored Pinterest session cookies",
	Long: `Store Pinterest session cookies securely for use with --cookies.

Sessions are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - The PINSCRAPER_SESSION_COOKIE environment variable (read only)

Cookies grant access to your account. Never share them!`,
}

var cookiesImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Store a cookie export in the vault",
	Long: `Store a browser cookie export (a JSON array) under a profile.

With --prompt the raw Cookie header is read from the terminal instead,
without echo.`,
	Example: `  # Import an exported file
  pinscraper cookies import ~/Downloads/cookies.json

  # Paste the Cookie header from DevTools
  pinscraper cookies import --prompt --profile work`,
	Args: cobra.MaximumNArgs(1),
	Run:  runCookiesImport,
}

var cookiesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List stored sessions with masked values",
	Run:   runCookiesShow,
}

var cookiesDeleteCmd = &cobra.Command{
	Use:   "delete [profile]",
	Short: "Remove a stored session",
	Args:  cobra.MaximumNArgs(1),
	Run:   runCookiesDelete,
}

var cookiesGuideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Explain how to export cookies from a browser",
	Run: func(cmd *cobra.Command, args []string) {
		cookies.ShowExportGuide(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(cookiesCmd)
	cookiesCmd.AddCommand(cookiesImportCmd)
	cookiesCmd.AddCommand(cookiesShowCmd)
	cookiesCmd.AddCommand(cookiesDeleteCmd)
	cookiesCmd.AddCommand(cookiesGuideCmd)

	cookiesCmd.PersistentFlags().StringVar(&cookieProfile, "profile", "default", "session profile name")
	cookiesImportCmd.Flags().BoolVar(&promptHeader, "prompt", false, "read a Cookie header from the terminal")
}

func runCookiesImport(cmd *cobra.Command, args []string) {
	var list []cookies.Cookie
	switch {
	case promptHeader:
		fmt.Print("Cookie header: ")
		header, err := readSecret()
		if err != nil {
			ui.PrintError("Failed to read cookie header", err.Error())
			os.Exit(1)
		}
		list = cookies.ParseHeader(header)
	case len(args) == 1:
		var err error
		list, err = cookies.LoadFile(args[0])
		if err != nil {
			ui.PrintError("Failed to read cookie file", err.Error())
			os.Exit(1)
		}
	default:
		cookies.ShowExportGuide(os.Stdout)
		os.Exit(1)
	}

	mgr, err := cookies.NewManager()
	if err != nil {
		ui.PrintError("Failed to open the cookie vault", err.Error())
		os.Exit(1)
	}
	if err := mgr.Store(&cookies.Session{Profile: cookieProfile, Cookies: list}); err != nil {
		ui.PrintError("Failed to store session", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess(fmt.Sprintf("Stored %d cookies for profile %q", len(list), cookieProfile))
}

func runCookiesShow(cmd *cobra.Command, args []string) {
	mgr, err := cookies.NewManager()
	if err != nil {
		ui.PrintError("Failed to open the cookie vault", err.Error())
		os.Exit(1)
	}
	sessions, err := mgr.List()
	if err != nil {
		ui.PrintError("Failed to list sessions", err.Error())
		os.Exit(1)
	}
	if len(sessions) == 0 {
		ui.PrintWarning("No stored sessions")
		return
	}

	for _, s := range sessions {
		s = cookies.Sanitize(s)
		ui.PrintInfo("Profile", s.Profile)
		if !s.LastModified.IsZero() {
			ui.PrintInfo("  Updated", s.LastModified.Format("2006-01-02 15:04"))
		}
		for _, c := range s.Cookies {
			fmt.Printf("    %s=%s\n", c.Name, c.Value)
		}
	}
}

func runCookiesDelete(cmd *cobra.Command, args []string) {
	profile := cookieProfile
	if len(args) == 1 {
		profile = args[0]
	}

	mgr, err := cookies.NewManager()
	if err != nil {
		ui.PrintError("Failed to open the cookie vault", err.Error())
		os.Exit(1)
	}
	if err := mgr.Delete(profile); err != nil {
		ui.PrintError("Failed to delete session", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess(fmt.Sprintf("Deleted profile %q", profile))
}

// readSecret reads a line without echo when stdin is a terminal
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
