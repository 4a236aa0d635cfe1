package models

import "time"

type Task struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Notes string     `json:"notes,omitempty"`
	Due   *time.Time `json:"due,omitempty"`
}

type Card struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ListName string `json:"listName"`
	ShortURL string `json:"shortUrl"`
	Desc     string `json:"desc,omitempty"`
}

// Snapshot is the cached read model of the user's calendar, tasks and board.
// LastUpdate is advanced only together with the fields it describes; a nil
// LastUpdate means the snapshot was never populated.
type Snapshot struct {
	Events     EventList  `json:"events"`
	Tasks      []Task     `json:"tasks"`
	BoardCards []Card     `json:"boardCards"`
	LastUpdate *time.Time `json:"lastUpdate"`
}
