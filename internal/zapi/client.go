package zapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"leadbot-gateway/internal/config"
)

// Client wraps the Z-API REST surface for a single instance.
type Client struct {
	baseURL     string
	clientToken string
	httpClient  *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:     fmt.Sprintf("%s/%s/token/%s", cfg.ZAPIBaseURL, cfg.ZAPIInstanceID, cfg.ZAPIToken),
		clientToken: cfg.ZAPIClientToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Button is one tappable option in a button-list message.
type Button struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type textPayload struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type buttonListPayload struct {
	Phone      string `json:"phone"`
	Message    string `json:"message"`
	ButtonList struct {
		Buttons []Button `json:"buttons"`
	} `json:"buttonList"`
}

type sendResponse struct {
	ZapID     string `json:"zaapId"`
	MessageID string `json:"messageId"`
}

// ContactInfo is the subset of the Z-API contact lookup we care about.
type ContactInfo struct {
	Name   string `json:"name"`
	Short  string `json:"short"`
	Vname  string `json:"vname"`
	ImgURL string `json:"imgUrl"`
}

type profilePicResponse struct {
	Link string `json:"link"`
}

func (c *Client) sendRequest(method, url string, body interface{}, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return err
	}

	req.Header.Set("Client-Token", c.clientToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("Z-API error: %s - %s", resp.Status, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return err
		}
	}

	return nil
}

// SendText sends a plain text message. Failures are propagated to the caller:
// a failed send must not be recorded as delivered.
func (c *Client) SendText(phone, message string) error {
	var resp sendResponse
	err := c.sendRequest("POST", c.baseURL+"/send-text", textPayload{Phone: phone, Message: message}, &resp)
	if err != nil {
		return err
	}
	log.Printf("Message sent to %s (messageId=%s)", phone, resp.MessageID)
	return nil
}

// SendButtonList sends a message with tappable button options.
func (c *Client) SendButtonList(phone, message string, buttons []Button) error {
	payload := buttonListPayload{Phone: phone, Message: message}
	payload.ButtonList.Buttons = buttons

	var resp sendResponse
	err := c.sendRequest("POST", c.baseURL+"/send-button-list", payload, &resp)
	if err != nil {
		return err
	}
	log.Printf("Button list sent to %s (messageId=%s)", phone, resp.MessageID)
	return nil
}

// GetProfilePicture looks up the contact's avatar URL. Best-effort.
func (c *Client) GetProfilePicture(phone string) (string, error) {
	var resp profilePicResponse
	url := fmt.Sprintf("%s/profile-picture?phone=%s", c.baseURL, phone)
	if err := c.sendRequest("GET", url, nil, &resp); err != nil {
		return "", err
	}
	return resp.Link, nil
}

// GetContactInfo looks up contact metadata. Best-effort.
func (c *Client) GetContactInfo(phone string) (*ContactInfo, error) {
	var info ContactInfo
	url := fmt.Sprintf("%s/contacts/%s", c.baseURL, phone)
	if err := c.sendRequest("GET", url, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
