package models

// QueueBreakdown counts waiting sessions per priority tier.
type QueueBreakdown struct {
	High   int `json:"high"`
	Normal int `json:"normal"`
	Low    int `json:"low"`
}

// KnowledgeStats summarizes the external knowledge base.
type KnowledgeStats struct {
	TotalDocuments   int     `json:"totalDocuments"`
	AvgContentLength float64 `json:"avgContentLength"`
	RecentDocuments  int     `json:"recentDocuments"`
}

// SystemStats is the aggregate view pushed to agents and dashboards.
type SystemStats struct {
	TotalSessions   int             `json:"totalSessions"`
	ActiveSessions  int             `json:"activeSessions"`
	QueueLength     int             `json:"queueLength"`
	TotalAgents     int             `json:"totalAgents"`
	AvailableAgents int             `json:"availableAgents"`
	QueueBreakdown  QueueBreakdown  `json:"queueBreakdown"`
	AvgWaitTime     float64         `json:"avgWaitTime"`
	MessagesLast24h int             `json:"messagesLast24h"`
	KnowledgeBase   *KnowledgeStats `json:"knowledgeBase,omitempty"`
}
