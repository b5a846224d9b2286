package main

import (
	"fmt"
	"log"
	"os"

	"fabflow/internal/kgraph"
	"fabflow/internal/store"
)

// #region main
func main() {
	dbPath := envOr("FABFLOW_DB", "fabflow.db")
	catalogPath := "catalog.yaml"
	if len(os.Args) > 1 {
		catalogPath = os.Args[1]
	}

	fmt.Println("=== Knowledge Store Bootstrap ===")
	fmt.Printf("  DB: %s | Catalog: %s\n", dbPath, catalogPath)

	st, err := store.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	kg, err := kgraph.NewStore(st.DB())
	if err != nil {
		log.Fatalf("failed to init knowledge store: %v", err)
	}

	catalog, err := kgraph.LoadCatalog(catalogPath)
	if err != nil {
		log.Fatalf("load catalog: %v", err)
	}

	counts, err := kg.SeedCatalog(catalog)
	if err != nil {
		log.Fatalf("seed catalog: %v", err)
	}

	fmt.Printf("\n=== Bootstrap Complete ===\n")
	fmt.Printf("  Tools: %d\n", counts.Tools)
	fmt.Printf("  Capabilities: %d\n", counts.Capabilities)
	fmt.Printf("  Incompatibilities: %d\n", counts.Incompatibilities)
}

// #endregion main

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
