package main

// welcomeText is sent once to every device when its connection opens.
const welcomeText = "Connected to health monitoring server"

// welcomeMessage is the server's greeting on a new ingestion connection.
type welcomeMessage struct {
	Message string `json:"message"`
}

// ackMessage acknowledges one accepted reading.
type ackMessage struct {
	Status   string `json:"status"`
	Received bool   `json:"received"`
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}
