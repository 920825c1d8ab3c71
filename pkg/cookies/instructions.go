package cookies

import (
	"fmt"
	"io"
	"strings"
)

// ShowExportGuide prints how to export Pinterest cookies from a browser
func ShowExportGuide(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "📚 PINTEREST COOKIE EXPORT GUIDE")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Private boards and some searches need a logged-in session.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "🌐 STEP 1: Log in at https://www.pinterest.com in your browser")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "🍪 STEP 2: Export the cookies for pinterest.com as JSON")
	fmt.Fprintln(w, "   • Use a cookie export extension (the \"JSON\" export format)")
	fmt.Fprintln(w, "   • Or copy them from DevTools → Application → Cookies")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "💾 STEP 3: Save the file as %s, or store it in the vault:\n", DefaultFile)
	fmt.Fprintln(w, "   pinscraper cookies import path/to/cookies.json")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Alternatively set %s to the raw Cookie header.\n", SessionEnvVar)
	fmt.Fprintln(w, "⚠️  Cookies grant access to your account. Never share them.")
}
