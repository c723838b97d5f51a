// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package job

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/reviewlens/ai"
	"github.com/poiesic/reviewlens/core"
)

// chatMaxTokens bounds one chat answer.
const chatMaxTokens = 1500

const chatSystemPrompt = `You are a review analysis assistant. Answer questions about the
trend report below. Be concise and ground every claim in the report's
numbers; say so plainly when the report doesn't cover a question.

Report for %s (%s to %s):

%s`

// Ask answers a question about a completed job's results. The question
// and answer are both persisted to the job's chat log before returning.
// Only completed jobs accept questions.
func (o *Orchestrator) Ask(ctx context.Context, jobID, question string) (string, error) {
	if o.completer == nil {
		return "", ErrChatUnavailable
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question cannot be empty", core.ErrValidation)
	}

	jobRecord, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if jobRecord.Status != core.JobCompleted {
		return "", fmt.Errorf("%w: job %s is %s", ErrJobNotCompleted, jobID, jobRecord.Status)
	}

	report, err := DecodeReport(jobRecord.Results)
	if err != nil {
		return "", err
	}

	history, err := o.jobs.GetChatMessages(ctx, jobID)
	if err != nil {
		return "", err
	}

	system := fmt.Sprintf(chatSystemPrompt,
		report.DisplayName, report.StartDate, report.EndDate, report.Summary)

	answer, err := o.completer.Complete(ctx, ai.CompletionRequest{
		System:      system,
		Prompt:      renderChatPrompt(history, question),
		Temperature: 0.3,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %w", core.ErrBackend, err)
	}
	answer = strings.TrimSpace(answer)

	now := time.Now().UTC()
	userMsg := &core.ChatMessage{JobID: jobID, Role: core.ChatRoleUser, Content: question, CreatedAt: now}
	if err := o.jobs.AddChatMessage(ctx, userMsg); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrBackend, err)
	}
	assistantMsg := &core.ChatMessage{JobID: jobID, Role: core.ChatRoleAssistant, Content: answer, CreatedAt: now.Add(time.Microsecond)}
	if err := o.jobs.AddChatMessage(ctx, assistantMsg); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrBackend, err)
	}

	return answer, nil
}

// GetChatHistory returns a job's conversation log in order.
func (o *Orchestrator) GetChatHistory(ctx context.Context, jobID string) ([]*core.ChatMessage, error) {
	if _, err := o.jobs.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return o.jobs.GetChatMessages(ctx, jobID)
}

// renderChatPrompt folds prior turns into a single user prompt so the
// conversation stays coherent across questions.
func renderChatPrompt(history []*core.ChatMessage, question string) string {
	if len(history) == 0 {
		return question
	}

	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	for _, msg := range history {
		switch msg.Role {
		case core.ChatRoleUser:
			fmt.Fprintf(&sb, "User: %s\n", msg.Content)
		case core.ChatRoleAssistant:
			fmt.Fprintf(&sb, "Assistant: %s\n", msg.Content)
		}
	}
	fmt.Fprintf(&sb, "\nUser: %s", question)
	return sb.String()
}
