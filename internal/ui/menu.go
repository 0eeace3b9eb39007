package ui

import (
	"context"
	"fmt"

	"github.com/alecsharpie/ey-frog-challenge/internal/delivery"
)

type menuOption struct {
	title   string
	handler func(ctx context.Context, app *delivery.App)
}

// ShowMenu displays the main menu and handles user input until the user
// exits or ctx is cancelled.
func ShowMenu(ctx context.Context, app *delivery.App) {
	exit := false
	menuOptions := []menuOption{
		{"Fetch occurrence records for a species", FetchOccurrences},
		{"Build a predictor stack for an area", BuildPredictors},
		{"Create a new dataset", CreateDataset},
		{"Train and cross-validate a model", TrainModel},
		{"Predict a probability map", PredictMap},
		{"Predict occurrence for a points file", PredictPoints},
		{"Export a dataset to PostgreSQL", ExportDataset},
		{"Exit the application", func(context.Context, *delivery.App) { fmt.Println("Exiting..."); exit = true }},
	}

	for !exit && ctx.Err() == nil {
		fmt.Println("\033[34m===================\033[0m")
		for i, opt := range menuOptions {
			fmt.Printf("\033[34m%d. %s\033[0m\n", i+1, opt.title)
		}

		choice, err := ReadInt("Please enter your choice: ", 1, len(menuOptions))
		if err != nil {
			fmt.Printf("\n\033[31mInvalid choice: %s. Please try again.\033[0m\n", err)
			continue
		}
		menuOptions[choice-1].handler(ctx, app)
	}
}
