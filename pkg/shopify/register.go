package shopify

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// OrderTopics are the webhook topics the reconciler subscribes to.
var OrderTopics = []string{"ORDERS_PAID", "REFUNDS_CREATE", "ORDERS_CANCELLED"}

const listSubscriptionsQuery = `
query webhookSubscriptions {
  webhookSubscriptions(first: 50) {
    edges {
      node {
        topic
      }
    }
  }
}`

const createSubscriptionMutation = `
mutation webhookSubscriptionCreate($topic: WebhookSubscriptionTopic!, $webhookSubscription: WebhookSubscriptionInput!) {
  webhookSubscriptionCreate(topic: $topic, webhookSubscription: $webhookSubscription) {
    userErrors {
      field
      message
    }
    webhookSubscription {
      id
    }
  }
}`

func (c *Client) listSubscribedTopics(ctx context.Context) (map[string]bool, error) {
	var data struct {
		WebhookSubscriptions struct {
			Edges []struct {
				Node struct {
					Topic string `json:"topic"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"webhookSubscriptions"`
	}
	if err := c.do(ctx, "webhookSubscriptions", listSubscriptionsQuery, nil, &data); err != nil {
		return nil, err
	}

	topics := make(map[string]bool, len(data.WebhookSubscriptions.Edges))
	for _, edge := range data.WebhookSubscriptions.Edges {
		topics[edge.Node.Topic] = true
	}
	return topics, nil
}

func (c *Client) createSubscription(ctx context.Context, topic, callbackURL string) error {
	var data struct {
		WebhookSubscriptionCreate struct {
			UserErrors []UserError `json:"userErrors"`
		} `json:"webhookSubscriptionCreate"`
	}
	err := c.do(ctx, "webhookSubscriptionCreate", createSubscriptionMutation, map[string]any{
		"topic": topic,
		"webhookSubscription": map[string]any{
			"callbackUrl": callbackURL,
			"format":      "JSON",
		},
	}, &data)
	if err != nil {
		return err
	}
	if errs := data.WebhookSubscriptionCreate.UserErrors; len(errs) > 0 {
		// A business rejection here will not resolve on its own.
		return backoff.Permanent(fmt.Errorf("subscribe %s: %s", topic, errs[0].Message))
	}
	return nil
}

// EnsureSubscriptions registers the order webhook subscriptions that are not
// yet present, retrying transient failures with exponential backoff. Called
// once at boot.
func (c *Client) EnsureSubscriptions(ctx context.Context, callbackURL string) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		existing, err := c.listSubscribedTopics(ctx)
		if err != nil {
			return struct{}{}, err
		}
		for _, topic := range OrderTopics {
			if existing[topic] {
				continue
			}
			if err := c.createSubscription(ctx, topic, callbackURL); err != nil {
				return struct{}{}, err
			}
			c.logger.InfoContext(ctx, "webhook subscription created",
				"topic", topic, "callback_url", callbackURL)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
		backoff.WithMaxElapsedTime(2*time.Minute),
	)
	return err
}
