package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/spf13/viper"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/models"
)

type TasksClient struct {
	service *tasks.Service
}

func NewTasksClient(ctx context.Context) (*TasksClient, error) {
	settings := viper.Get("google.service_account")

	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal service account settings to JSON: %w", err)
	}

	config, err := google.JWTConfigFromJSON(jsonBytes, tasks.TasksReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account credentials from JSON: %w", err)
	}

	client := config.Client(ctx)

	srv, err := tasks.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Tasks client: %w", err)
	}

	return &TasksClient{service: srv}, nil
}

// ListTasks returns the pending tasks from the configured task list.
func (c *TasksClient) ListTasks(ctx context.Context) ([]models.Task, error) {
	tasklistID := viper.GetString("google.tasks.tasklist_id")
	if tasklistID == "" {
		tasklistID = "@default"
	}

	var items []*tasks.Task
	err := retry.Do(func() error {
		resp, err := c.service.Tasks.List(tasklistID).
			ShowCompleted(false).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		items = resp.Items
		return nil
	}, retry.Context(ctx), retry.Attempts(3), retry.Delay(time.Second), retry.RetryIf(googleTransient), retry.LastErrorOnly(true))
	if err != nil {
		return nil, fmt.Errorf("unable to list tasks from Google Tasks: %w", err)
	}

	out := make([]models.Task, 0, len(items))
	for _, item := range items {
		t := models.Task{
			ID:    item.Id,
			Title: item.Title,
			Notes: item.Notes,
		}
		if item.Due != "" {
			due, err := time.Parse(time.RFC3339, item.Due)
			if err == nil {
				t.Due = &due
			}
		}
		out = append(out, t)
	}
	return out, nil
}
