// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/unclebandit/msgblast-backend/internal/config"
	"github.com/unclebandit/msgblast-backend/internal/db"
	"github.com/unclebandit/msgblast-backend/internal/model"
	"github.com/unclebandit/msgblast-backend/internal/repository"
	"github.com/unclebandit/msgblast-backend/internal/validator"
)

// Seeds the schema plus a demo template, a generated message and one draft
// email job, so the API has something to start against on a fresh database.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	ctx := context.Background()
	if err := db.EnsureSchema(ctx, conn); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	templateID := "tpl-welcome"
	_, err = conn.ExecContext(ctx, `
		INSERT INTO templates (id, name, subject, body, preheader)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		templateID,
		"Welcome",
		"Welcome to {company}, {first_name}!",
		"Hi {name},\n\nThanks for joining {company}. Your plan: {plan}.\n\n{company} team",
		"A warm welcome from {company}",
	)
	if err != nil {
		log.Fatalf("failed to seed template: %v", err)
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO generated_messages (id, subject, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		"gen-offer",
		"An offer for {first_name}",
		"Hi {first_name}, we picked this offer for you. Valid through {current_year}.",
	)
	if err != nil {
		log.Fatalf("failed to seed generated message: %v", err)
	}

	raw := []validator.RawRecipient{
		{Email: "alice@example.com", Name: "Alice Wanjiku", CustomFields: map[string]string{"plan": "pro"}},
		{Email: "bob@example.com", Name: "Bob Ochieng", CustomFields: map[string]string{"plan": "starter"}},
		{Email: "carol@example.com", Name: "Carol Njeri", CustomFields: map[string]string{"plan": "pro"}},
	}
	recipients, invalid := validator.Validate(raw, model.ChannelEmail)
	if len(invalid) > 0 {
		log.Fatalf("seed recipients rejected: %v", invalid)
	}

	job := &model.SendJob{
		ID:           uuid.New().String(),
		Name:         "Welcome blast (demo)",
		Channel:      model.ChannelEmail,
		Status:       model.JobDraft,
		TemplateID:   &templateID,
		ScheduleType: model.ScheduleImmediate,
	}

	jobRepo := &repository.JobRepository{DB: conn}
	if err := jobRepo.Create(ctx, job, recipients); err != nil {
		log.Fatalf("failed to seed demo job: %v", err)
	}

	fmt.Printf("Seeded demo job %s with %d recipients\n", job.ID, len(recipients))
	fmt.Println("Database seeding completed successfully!")
}
