package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"foundry/internal/domain"
)

func writeJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func writeRunResult(result domain.RunResult, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(result)
	}
	fmt.Printf("status=%s tool=%s version=%d\n", result.Status, result.ToolName, result.Version)
	if result.Reason != "" {
		fmt.Printf("reason=%s\n", result.Reason)
	}
	return nil
}

func writeTools(tools []domain.ToolDescriptor, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(tools)
	}
	for _, tool := range tools {
		params := make([]string, 0, len(tool.Parameters))
		for _, param := range tool.Parameters {
			params = append(params, param.Name)
		}
		fmt.Printf("%s\tv%d\t%s\t[%s]\n", tool.Name, tool.Version, tool.Status, strings.Join(params, ","))
	}
	return nil
}

func writeReport(report domain.ValidationReport, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(report)
	}
	fmt.Printf("tool=%s version=%d passed=%t\n", report.ToolName, report.Version, report.Passed)
	for _, stage := range report.Stages {
		line := fmt.Sprintf("%s\t%s", stage.Stage, stage.Outcome)
		if stage.Code != "" {
			line += "\t" + string(stage.Code)
		}
		if stage.Detail != "" {
			line += "\t" + stage.Detail
		}
		fmt.Println(line)
	}
	return nil
}

func writeFixRecords(records []domain.FixRecord, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(records)
	}
	for _, record := range records {
		kinds := make([]string, 0, len(record.Corrections))
		for _, correction := range record.Corrections {
			kinds = append(kinds, string(correction.Kind))
		}
		fmt.Printf("v%d -> v%d\t[%s]\t%s\n", record.SourceVersion, record.NewVersion, strings.Join(kinds, ","), record.Reason)
	}
	return nil
}

func writeEnvironment(env domain.EnvironmentDescriptor, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(env)
	}
	fmt.Printf("%s\t%s\t%s\tdeps=%d\t%s\n",
		env.ID, env.Status, env.Interpreter, len(env.Dependencies), env.CreatedAt.Format(time.RFC3339))
	return nil
}

func writeEnvironments(environments []domain.EnvironmentDescriptor, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(environments)
	}
	for _, env := range environments {
		if err := writeEnvironment(env, false); err != nil {
			return err
		}
	}
	return nil
}
