package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// prompts.go holds the fixed texts sent to the model and returned to patients.

const (
	// DefaultSystemPrompt is used when no prompt file is configured. It runs
	// the four-question intake interview and calls save_encounter at the end.
	DefaultSystemPrompt = "You are a friendly medical intake assistant at a clinic reception. " +
		"Interview the patient before they see a doctor. Ask one short question at a time, in the patient's language, and be empathetic. " +
		"Cover exactly these four questions: (1) what is the main symptom that brought you in; " +
		"(2) when did it start and how severe is it on a scale of 0 to 10; " +
		"(3) do you have any other symptoms together with it; " +
		"(4) is there anything you are especially worried about. " +
		"Do not diagnose and do not recommend treatment. " +
		"When all four answers are collected, call save_encounter with the answers. Do not call it earlier."

	// EnrichmentInstruction asks the model for the bilingual card payload as a
	// single JSON object.
	EnrichmentInstruction = "You convert a patient intake record into a bilingual (Korean/English) medical card. " +
		"Return ONLY one JSON object with exactly these keys: " +
		"cc_kor (chief complaint in Korean), cc_eng (chief complaint in English), " +
		"hpi_kor (history of present illness, one short clinical paragraph in Korean for the physician), " +
		"hpi_eng (the same history in plain English for the patient), " +
		"pain_score (number 0-10 taken from the severity, or null if unknown), " +
		"allergies_kor and allergies_eng (known allergies; use \"없음\" and \"None\" when unknown), " +
		"suggested_dept_kor and suggested_dept_eng (the most appropriate clinical department), " +
		"is_emergency (boolean: true when severity is above 7 or red-flag symptoms are present). " +
		"Do not add diagnoses."

	// ConfirmationMessage is returned to the patient once the encounter is saved.
	ConfirmationMessage = "Your symptom information has been saved successfully."
)

// LoadSystemPrompt reads the intake prompt from path. A missing file falls
// back to DefaultSystemPrompt; an empty path does the same.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultSystemPrompt, nil
		}
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return DefaultSystemPrompt, nil
	}
	return prompt, nil
}
