package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

var seedCategories = []struct {
	name, slug, description string
}{
	{"Investing", "investing", "Index funds, real estate and long-term compounding."},
	{"Entrepreneurship", "entrepreneurship", "Starting, running and selling a business."},
	{"Personal Finance", "personal-finance", "Budgeting, saving and debt payoff."},
	{"Mindset", "mindset", "Habits and decision making for wealth builders."},
}

// Seed populates the database with initial development data: the default
// categories and a welcome post. It does nothing if posts already exist.
func Seed(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM posts").Scan(&count); err != nil {
		return fmt.Errorf("seed check posts: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	for i, c := range seedCategories {
		_, err := db.Exec(`
			INSERT INTO categories (name, slug, description, sort_order)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (slug) DO NOTHING
		`, c.name, c.slug, c.description, i)
		if err != nil {
			return fmt.Errorf("seed insert category %s: %w", c.slug, err)
		}
	}

	_, err := db.Exec(`
		INSERT INTO posts (title, slug, excerpt, body, category, tags, published, featured)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, TRUE, TRUE)
		ON CONFLICT (slug) DO NOTHING
	`,
		"Welcome to Standardthought",
		"welcome-to-standardthought",
		"What this blog is about and how to get the most out of it.",
		"## Start here\n\nEvery week we publish practical notes on building wealth.\n\n- Subscribe to the newsletter\n- Browse the guides\n",
		"Mindset",
		`["welcome","start-here"]`,
	)
	if err != nil {
		return fmt.Errorf("seed insert welcome post: %w", err)
	}

	slog.Info("database seeded with default categories and welcome post")
	return nil
}
