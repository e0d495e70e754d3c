package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"trading-journal/config"
	"trading-journal/internal/database"
	"trading-journal/internal/storage"
	"trading-journal/internal/vault"
)

func main() {
	fmt.Println("========================================")
	fmt.Println(" Trading Journal Administration Tool")
	fmt.Println("========================================")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println("\nOptions:")
		fmt.Println("  1. Generate sample config")
		fmt.Println("  2. Store secrets in Vault")
		fmt.Println("  3. Run database migrations")
		fmt.Println("  4. Check backend health")
		fmt.Println("  5. Exit")
		fmt.Print("\nSelect option: ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		switch input {
		case "1":
			generateConfig(reader)
		case "2":
			storeSecrets(reader)
		case "3":
			runMigrations()
		case "4":
			checkHealth()
		case "5":
			fmt.Println("Goodbye!")
			os.Exit(0)
		default:
			fmt.Println("Invalid option")
		}
	}
}

func prompt(reader *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}

func loadConfig() (*config.Config, bool) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		return nil, false
	}
	return cfg, true
}

func generateConfig(reader *bufio.Reader) {
	fmt.Println("\n--- Generate Sample Config ---")
	path := prompt(reader, "Output file", "config.json")

	if _, err := os.Stat(path); err == nil {
		if strings.ToLower(prompt(reader, path+" exists, overwrite? (y/N)", "n")) != "y" {
			fmt.Println("Cancelled")
			return
		}
	}

	if err := config.GenerateSampleConfig(path); err != nil {
		fmt.Printf("Failed: %v\n", err)
		return
	}
	fmt.Printf("Wrote %s\n", path)
}

func storeSecrets(reader *bufio.Reader) {
	fmt.Println("\n--- Store Secrets in Vault ---")
	cfg, ok := loadConfig()
	if !ok {
		return
	}
	if !cfg.VaultConfig.Enabled {
		fmt.Println("Vault is disabled (set VAULT_ENABLED=true)")
		return
	}

	client, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		fmt.Printf("Failed to create Vault client: %v\n", err)
		return
	}

	fmt.Println("Leave a value empty to skip it.")
	values := make(map[string]string)
	for _, key := range []string{
		vault.KeyJWTSecret,
		vault.KeyDBPassword,
		vault.KeyRedisPassword,
		vault.KeyFirebaseCredentialsJSON,
	} {
		if v := prompt(reader, key, ""); v != "" {
			values[key] = v
		}
	}
	if len(values) == 0 {
		fmt.Println("Nothing to store")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.StoreSecrets(ctx, values); err != nil {
		fmt.Printf("Failed: %v\n", err)
		return
	}
	fmt.Printf("Stored %d secrets at %s/%s\n", len(values), cfg.VaultConfig.MountPath, cfg.VaultConfig.SecretPath)
}

func runMigrations() {
	fmt.Println("\n--- Run Database Migrations ---")
	cfg, ok := loadConfig()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.NewDB(ctx, cfg.DatabaseConfig)
	if err != nil {
		fmt.Printf("Failed to connect: %v\n", err)
		return
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		fmt.Printf("Migrations failed: %v\n", err)
		return
	}
	fmt.Printf("Migrations applied to %s:%d/%s\n", cfg.DatabaseConfig.Host, cfg.DatabaseConfig.Port, cfg.DatabaseConfig.Database)
}

func checkHealth() {
	fmt.Println("\n--- Backend Health ---")
	cfg, ok := loadConfig()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		fmt.Printf("  Store (%s):  FAILED %v\n", cfg.StorageConfig.Backend, err)
	} else {
		defer store.Close()
		fmt.Printf("  Store (%s):  %s\n", cfg.StorageConfig.Backend, status(store.HealthCheck(ctx)))
	}

	if !cfg.VaultConfig.Enabled {
		fmt.Println("  Vault:        disabled")
		return
	}
	client, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		fmt.Printf("  Vault:        FAILED %v\n", err)
		return
	}
	fmt.Printf("  Vault:        %s\n", status(client.Health(ctx)))
}

func status(err error) string {
	if err != nil {
		return "FAILED " + err.Error()
	}
	return "OK"
}
