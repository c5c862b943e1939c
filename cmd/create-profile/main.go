// CLI tool to create (or replace) a client profile and print its client id.
// Set HEYS_CLIENT_ID to the printed id to run the API as that client.
// Usage: go run ./cmd/create-profile (from the repo root)
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	conn, err := pgx.Connect(context.Background(), os.Getenv("DB_URL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(context.Background())

	reader := bufio.NewReader(os.Stdin)
	prompt := func(label, fallback string) string {
		fmt.Printf("%s [%s]: ", label, fallback)
		v, _ := reader.ReadString('\n')
		if v = strings.TrimSpace(v); v == "" {
			return fallback
		}
		return v
	}
	number := func(label, fallback string) float64 {
		v := prompt(label, fallback)
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s must be a number, got %q\n", label, v)
			os.Exit(1)
		}
		return f
	}

	clientID := prompt("Client ID", uuid.NewString())
	weight := number("Weight (kg)", "70")
	height := number("Height (cm)", "170")
	age := number("Age", "30")
	sex := prompt("Sex (male/female)", "female")
	if sex != "male" && sex != "female" {
		fmt.Fprintf(os.Stderr, "Sex must be male or female, got %q\n", sex)
		os.Exit(1)
	}
	deficit := number("Deficit % (negative = deficit)", "-15")

	_, err = conn.Exec(context.Background(),
		`INSERT INTO profiles (client_id, weight_kg, height_cm, age, sex, deficit_pct)
		 VALUES (@clientID, @weight, @height, @age, @sex, @deficit)
		 ON CONFLICT (client_id) DO UPDATE SET
		   weight_kg = EXCLUDED.weight_kg, height_cm = EXCLUDED.height_cm,
		   age = EXCLUDED.age, sex = EXCLUDED.sex, deficit_pct = EXCLUDED.deficit_pct`,
		pgx.NamedArgs{
			"clientID": clientID,
			"weight":   weight,
			"height":   height,
			"age":      int(age),
			"sex":      sex,
			"deficit":  deficit,
		})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating profile: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nProfile saved!\n")
	fmt.Printf("  Client ID: %s\n", clientID)
	fmt.Printf("  Add HEYS_CLIENT_ID=%s to .env\n", clientID)
}
