// Command esgctl runs ESG ingestion maintenance tasks from the shell.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
