package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// ErrLinkButtonNotPressed is returned by Pair when the user has not yet
// pressed the link button on the Hue bridge.
var ErrLinkButtonNotPressed = errors.New("link button not pressed")

// ErrUnauthorized is returned when the bridge rejects the API credentials.
var ErrUnauthorized = errors.New("unauthorized")

// hueBridge talks to the CLIP API of one bridge.
type hueBridge struct {
	baseURL  string
	username string
	client   *http.Client
}

func newHueBridge(ip net.IP, username string) *hueBridge {
	host := ip.String()
	if ip.To4() == nil {
		host = "[" + host + "]"
	}
	return &hueBridge{
		baseURL:  "https://" + host,
		username: username,
		client: &http.Client{
			Transport: &http.Transport{
				// Bridges use a self-signed certificate.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

func (b *hueBridge) do(ctx context.Context, method, path, body string, out interface{}) (int, error) {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, r)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if b.username != "" {
		req.Header.Set("hue-application-key", b.username)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, ErrUnauthorized
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

// Pair registers campick with the bridge and returns the API username and
// the streaming client key. The link button must have been pressed.
func (b *hueBridge) Pair(ctx context.Context) (BridgeCredentials, error) {
	var result []struct {
		Success *struct {
			Username  string `json:"username"`
			Clientkey string `json:"clientkey"`
		} `json:"success"`
		Error *struct {
			Type        int    `json:"type"`
			Description string `json:"description"`
		} `json:"error"`
	}
	body := `{"devicetype":"campick#terminal","generateclientkey":true}`
	if _, err := b.do(ctx, http.MethodPost, "/api", body, &result); err != nil {
		return BridgeCredentials{}, fmt.Errorf("pairing request: %w", err)
	}

	if len(result) == 0 {
		return BridgeCredentials{}, fmt.Errorf("empty pair response")
	}
	r := result[0]
	switch {
	case r.Error != nil && r.Error.Type == 101:
		return BridgeCredentials{}, ErrLinkButtonNotPressed
	case r.Error != nil:
		return BridgeCredentials{}, fmt.Errorf("bridge error %d: %s", r.Error.Type, r.Error.Description)
	case r.Success == nil:
		return BridgeCredentials{}, fmt.Errorf("unexpected pair response: no success or error")
	}
	return BridgeCredentials{Username: r.Success.Username, Clientkey: r.Success.Clientkey}, nil
}

// EntertainmentArea is a Hue entertainment configuration.
type EntertainmentArea struct {
	ID         string
	Name       string
	ChannelIDs []uint8
	Lights     int
}

func (a EntertainmentArea) String() string {
	return fmt.Sprintf("%s (%d channels, %d lights)", a.Name, len(a.ChannelIDs), a.Lights)
}

// Areas lists the bridge's entertainment configurations.
func (b *hueBridge) Areas(ctx context.Context) ([]EntertainmentArea, error) {
	var result struct {
		Data []struct {
			ID       string `json:"id"`
			Metadata struct {
				Name string `json:"name"`
			} `json:"metadata"`
			Channels []struct {
				ChannelID uint8 `json:"channel_id"`
			} `json:"channels"`
			LightServices []json.RawMessage `json:"light_services"`
		} `json:"data"`
	}
	if _, err := b.do(ctx, http.MethodGet, "/clip/v2/resource/entertainment_configuration", "", &result); err != nil {
		return nil, fmt.Errorf("fetching entertainment areas: %w", err)
	}

	areas := make([]EntertainmentArea, len(result.Data))
	for i, d := range result.Data {
		ids := make([]uint8, len(d.Channels))
		for j, ch := range d.Channels {
			ids[j] = ch.ChannelID
		}
		areas[i] = EntertainmentArea{
			ID:         d.ID,
			Name:       d.Metadata.Name,
			ChannelIDs: ids,
			Lights:     len(d.LightServices),
		}
	}
	return areas, nil
}

// SetStreaming starts or stops entertainment mode for an area.
func (b *hueBridge) SetStreaming(ctx context.Context, areaID string, active bool) error {
	action := "stop"
	if active {
		action = "start"
	}
	status, err := b.do(ctx, http.MethodPut, "/clip/v2/resource/entertainment_configuration/"+areaID,
		`{"action":"`+action+`"}`, nil)
	if err != nil {
		return fmt.Errorf("%s streaming: %w", action, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%s streaming: HTTP %d", action, status)
	}
	return nil
}

// pickArea returns the area with the given id, or the only area when id is empty.
func pickArea(areas []EntertainmentArea, id string) (EntertainmentArea, error) {
	if id != "" {
		for _, a := range areas {
			if a.ID == id {
				return a, nil
			}
		}
		return EntertainmentArea{}, fmt.Errorf("entertainment area %s not found", id)
	}
	switch len(areas) {
	case 0:
		return EntertainmentArea{}, fmt.Errorf("no entertainment areas configured on this bridge")
	case 1:
		return areas[0], nil
	default:
		return EntertainmentArea{}, fmt.Errorf("%d entertainment areas found, set hue.area_id", len(areas))
	}
}
