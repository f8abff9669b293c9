package core

import "fmt"

// PrintBanner prints the startup banner for cnsdemo and cnsrepl.
func PrintBanner() {
	banner := `
   ___ _ __  ___
  / __| '_ \/ __|
 | (__| | | \__ \
  \___|_| |_|___/

  cooperative neuron stimulation runtime
  ---------------------------------------
`
	fmt.Print(banner)
}
