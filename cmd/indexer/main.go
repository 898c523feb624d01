// Command indexer rebuilds the template index from the store. It is an
// offline step: any malformed bundle aborts the run and the previous index
// is left untouched.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/automuse/api/templates"
)

func main() {
	storeDir := flag.String("store", templates.DefaultStoreDir(), "template store root directory")
	indexPath := flag.String("index", templates.DefaultIndexPath(), "index output path")
	flag.Parse()

	idx, err := templates.BuildIndex(*storeDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "indexing failed:", err)
		os.Exit(1)
	}
	if err := templates.WriteIndex(idx, *indexPath); err != nil {
		fmt.Fprintln(os.Stderr, "writing index failed:", err)
		os.Exit(1)
	}

	fmt.Printf("Indexed %d templates -> %s\n", idx.Count, *indexPath)
}
