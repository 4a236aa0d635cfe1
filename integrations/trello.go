package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/andrelucas-arraes/telegram-assistant-bot/internal/models"
)

// httpStatusError is returned for non-2xx responses so the retry predicate
// can tell transient statuses apart from hard failures.
type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

func httpTransient(err error) bool {
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	// Anything else is a network-level failure; retry it.
	return true
}

type TrelloClient struct {
	Client   *http.Client
	APIKey   string
	APIToken string
	BoardIDs []string
}

func NewTrelloClient(key, token string, boardIDs []string) *TrelloClient {
	return &TrelloClient{
		Client:   &http.Client{},
		APIKey:   key,
		APIToken: token,
		BoardIDs: boardIDs,
	}
}

type trelloList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type trelloCard struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IDList   string `json:"idList"`
	ShortURL string `json:"shortUrl"`
	Desc     string `json:"desc"`
}

// ListAllCards returns every open card across the configured boards, each
// annotated with the name of the list it sits in.
func (tc *TrelloClient) ListAllCards(ctx context.Context) ([]models.Card, error) {
	var cards []models.Card
	for _, boardID := range tc.BoardIDs {
		boardCards, err := tc.listBoardCards(ctx, boardID)
		if err != nil {
			return nil, fmt.Errorf("board %s: %w", boardID, err)
		}
		cards = append(cards, boardCards...)
	}
	return cards, nil
}

func (tc *TrelloClient) listBoardCards(ctx context.Context, boardID string) ([]models.Card, error) {
	var lists []trelloList
	listsURL := fmt.Sprintf("https://api.trello.com/1/boards/%s/lists", boardID)
	if err := tc.getJSON(ctx, listsURL, nil, &lists); err != nil {
		return nil, fmt.Errorf("failed to fetch lists: %w", err)
	}
	listNames := make(map[string]string, len(lists))
	for _, l := range lists {
		listNames[l.ID] = l.Name
	}

	var raw []trelloCard
	cardsURL := fmt.Sprintf("https://api.trello.com/1/boards/%s/cards", boardID)
	params := url.Values{}
	params.Set("fields", "name,idList,shortUrl,desc")
	if err := tc.getJSON(ctx, cardsURL, params, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch cards: %w", err)
	}

	cards := make([]models.Card, 0, len(raw))
	for _, c := range raw {
		cards = append(cards, models.Card{
			ID:       c.ID,
			Name:     c.Name,
			ListName: listNames[c.IDList],
			ShortURL: c.ShortURL,
			Desc:     c.Desc,
		})
	}
	return cards, nil
}

func (tc *TrelloClient) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", tc.APIKey)
	params.Set("token", tc.APIToken)
	fullURL := rawURL + "?" + params.Encode()

	return retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create get request: %v", err)
		}

		resp, err := tc.Client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send get request: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			return &httpStatusError{Status: resp.StatusCode, Body: string(bodyBytes)}
		}

		return json.NewDecoder(resp.Body).Decode(out)
	}, retry.Context(ctx), retry.Attempts(3), retry.Delay(time.Second), retry.RetryIf(httpTransient), retry.LastErrorOnly(true))
}
