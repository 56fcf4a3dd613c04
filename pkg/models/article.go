package models

import "time"

// DefaultTitle is stored when a feed item carries no title.
const DefaultTitle = "No Title"

// Article is a single persisted news item.
type Article struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Source         string    `json:"source"`          // originating feed URL
	URL            string    `json:"url"`             // canonical link, unique across all tickers
	PublishedAt    time.Time `json:"published_at"`    // always UTC
	SentimentScore float64   `json:"sentiment_score"` // -1.0 (bearish) to +1.0 (bullish)
	Ticker         string    `json:"ticker"`
}

// FeedConfig binds a feed URL to the ticker its articles are stored under.
type FeedConfig struct {
	URL    string `json:"url"    mapstructure:"url"    yaml:"url"`
	Ticker string `json:"ticker" mapstructure:"ticker" yaml:"ticker"`
}

// TickerSentiment is the windowed aggregate returned by the query surface.
type TickerSentiment struct {
	Ticker           string    `json:"ticker"`
	AverageSentiment float64   `json:"average_sentiment"`
	Label            string    `json:"label"`
	ArticleCount     int       `json:"article_count"`
	Window           string    `json:"window"`
	CalculatedAt     time.Time `json:"calculated_at"`
}
