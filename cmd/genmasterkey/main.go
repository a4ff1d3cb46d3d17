package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/harrylevesque/dwetransfer/internal/config"
	"github.com/harrylevesque/dwetransfer/internal/keystore"
)

// genmasterkey writes master.key into the data dir. Once it exists the
// account file is stored encrypted; a plaintext account is converted on the
// next load.
func main() {
	pflag.String("data-dir", "", "Data directory (default ~/.dwetransfer)")
	pflag.String("config", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	path, err := keystore.WriteMasterKey(cfg.Data.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Master key written to %s\n", path)
}
