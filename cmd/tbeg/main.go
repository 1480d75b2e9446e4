// Command tbeg is a runnable usage demo for generator.Generator, in
// the same spirit as the teacher's own root main.go: it builds a small
// template in memory, binds it to a static DataProvider, and renders it
// through the full pipeline — not a production CLI.
package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/internal/logger"
	"github.com/jogakdal/tbeg/pkg/tbeg/generator"
	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/provider"
)

type employee struct {
	Name       string
	Department string
	Salary     int
}

func main() {
	if _, err := logger.Init(logger.Options{Verbose: true}); err != nil {
		panic(err)
	}
	defer logger.Close()

	templateBytes, err := buildSampleTemplate()
	if err != nil {
		log.Fatal().Err(err).Msg("build sample template")
	}

	employees := []interface{}{
		employee{Name: "John Doe", Department: "Engineering", Salary: 75000},
		employee{Name: "Jane Smith", Department: "Marketing", Salary: 65000},
		employee{Name: "Bob Johnson", Department: "Sales", Salary: 70000},
	}

	dataProvider := provider.NewStatic().
		WithValue("companyName", "Acme Inc").
		WithValue("reportDate", time.Now().Format("2006-01-02")).
		WithSlice("employees", employees).
		WithMetadata(model.DocumentMetadata{
			Title:  "Employee Report",
			Author: "tbeg demo",
		})

	gen := generator.New()
	cfg := model.DefaultConfig()

	out, err := gen.Generate(context.Background(), templateBytes, dataProvider, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("generate report")
	}

	const outputPath = "employee_report.xlsx"
	if err := os.WriteFile(outputPath, out, 0644); err != nil {
		log.Fatal().Err(err).Msg("write report")
	}
	log.Info().Str("path", outputPath).Int("bytes", len(out)).Msg("wrote report")

	// Same render again, this time asynchronously, to exercise the
	// Handle-based API a background caller would use.
	handle := gen.GenerateAsync(context.Background(), templateBytes, dataProvider, cfg)
	asyncOut, err := handle.Wait()
	if err != nil {
		log.Fatal().Err(err).Msg("async generate report")
	}
	log.Info().Int("bytes", len(asyncOut)).Msg("async render complete")
}

// buildSampleTemplate constructs a minimal in-memory template: a company
// name variable, a repeat over employees, and a static footer.
func buildSampleTemplate() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	rows := map[string]string{
		"A1": "${companyName}",
		"B1": "${reportDate}",
		"D1": "${repeat(employees, A3:C3, emp, DOWN)}",
		"A3": "${emp.Name}",
		"B3": "${emp.Department}",
		"C3": "${emp.Salary}",
		"A5": "Generated by tbeg",
	}
	for cell, value := range rows {
		if err := f.SetCellValue("Sheet1", cell, value); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
