package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/susu3304/recibot/internal/receipt"
)

const (
	ftsHost       = "irkkt-mobile.nalog.ru:8888"
	authURL       = "https://" + ftsHost + "/v2/mobile/users/lkfl/auth"
	ticketURL     = "https://" + ftsHost + "/v2/ticket"
	ticketsURL    = "https://" + ftsHost + "/v2/tickets/"
	backupOFDURL  = "https://proverkacheka.com/check/get"
	receiptNLPURL = "https://receiptnlp.tinkoff.ru/api/fns"
	clientVersion = "2.9.0"
	deviceOS      = "iOS"
	userAgent     = "billchecker/2.9.0 (iPhone; iOS 13.6; Scale/2.00)"
)

var ErrNoTicket = errors.New("ticket not found")

// IsQR reports whether a message looks like a decoded receipt QR string
// (the fiscal fn/fp markers are always present).
func IsQR(text string) bool {
	return strings.Contains(text, "fn=") && strings.Contains(text, "fp=")
}

// Client fetches itemized tickets for a receipt QR string from the federal
// tax service, with a public OFD checker as backup.
type Client struct {
	http      *http.Client
	inn       string
	password  string
	secret    string
	sessionID string
	nlpURL    string
}

func NewClient(inn, password, secret string) *Client {
	return &Client{
		http:     &http.Client{Timeout: 15 * time.Second},
		inn:      inn,
		password: password,
		secret:   secret,
		nlpURL:   receiptNLPURL,
	}
}

// Enabled reports whether FTS credentials are configured.
func (c *Client) Enabled() bool {
	return c.inn != "" && c.password != "" && c.secret != ""
}

type rawTicketItem struct {
	Name     string          `json:"name"`
	Price    json.Number     `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Sum      json.Number     `json:"sum"`
}

// ticketReceipt is the fiscal receipt body shared by the FTS and OFD answers.
// The metadata fields feed the NLP name cleanup.
type ticketReceipt struct {
	User                 string          `json:"user"`
	UserInn              string          `json:"userInn"`
	KktRegID             string          `json:"kktRegId"`
	FiscalDocumentNumber int64           `json:"fiscalDocumentNumber"`
	FiscalSign           int64           `json:"fiscalSign"`
	TotalSum             int64           `json:"totalSum"`
	DateTime             json.RawMessage `json:"dateTime"`
	Items                []rawTicketItem `json:"items"`
}

// Items fetches the receipt for a QR string and returns normalized raw items.
// The FTS and the backup OFD endpoint are queried in parallel; the first
// usable answer wins.
func (c *Client) Items(ctx context.Context, qr string) ([]receipt.RawItem, error) {
	type answer struct {
		rcpt *ticketReceipt
		err  error
	}
	results := make(chan answer, 2)
	go func() {
		rcpt, err := c.federalTaxTicket(ctx, qr)
		results <- answer{rcpt: rcpt, err: err}
	}()
	go func() {
		rcpt, err := c.backupOFDTicket(ctx, qr)
		results <- answer{rcpt: rcpt, err: err}
	}()

	var lastErr error
	for i := 0; i < 2; i++ {
		a := <-results
		if a.err != nil {
			lastErr = a.err
			continue
		}
		if a.rcpt != nil && len(a.rcpt.Items) > 0 {
			c.cleanNames(ctx, a.rcpt)
			return convertItems(a.rcpt.Items), nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoTicket
}

// cleanNames sends the receipt through the Tinkoff NLP service, which turns
// abbreviated fiscal item names into readable ones. On any failure the raw
// names are kept; cleanup is best effort.
func (c *Client) cleanNames(ctx context.Context, rcpt *ticketReceipt) {
	payload := map[string]interface{}{
		"user":                 rcpt.User,
		"userInn":              strings.TrimSpace(rcpt.UserInn),
		"retailPlaceAddress":   "",
		"kktRegId":             strings.TrimSpace(rcpt.KktRegID),
		"fiscalDocumentNumber": rcpt.FiscalDocumentNumber,
		"fiscalSign":           rcpt.FiscalSign,
		"totalSum":             rcpt.TotalSum,
		"dateTime":             nlpDateTime(rcpt.DateTime),
		"items":                rcpt.Items,
	}

	var resp struct {
		Result struct {
			Items []struct {
				Look string `json:"look"`
			} `json:"items"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, c.nlpURL, payload, &resp); err != nil {
		log.Printf("Receipt NLP cleanup failed: %v", err)
		return
	}
	if len(resp.Result.Items) != len(rcpt.Items) {
		log.Printf("Receipt NLP cleanup returned %d names for %d items", len(resp.Result.Items), len(rcpt.Items))
		return
	}
	for i := range rcpt.Items {
		if look := resp.Result.Items[i].Look; look != "" {
			rcpt.Items[i].Name = look
		}
	}
}

// nlpDateTime renders the receipt timestamp the way the NLP service expects:
// unix seconds become ISO 8601, strings pass through.
func nlpDateTime(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var unix int64
	if err := json.Unmarshal(raw, &unix); err == nil {
		return time.Unix(unix, 0).UTC().Format("2006-01-02T15:04:05")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// convertItems turns ticket lines into catalog input. Prices come in integer
// kopecks; dividing by 100 as a decimal keeps them exact.
func convertItems(raw []rawTicketItem) []receipt.RawItem {
	items := make([]receipt.RawItem, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.Price.String())
		if err != nil {
			continue
		}
		qty := int(r.Quantity.IntPart())
		if qty < 1 {
			qty = 1
		}
		items = append(items, receipt.RawItem{
			Name:      strings.ToLower(strings.TrimSpace(r.Name)),
			UnitPrice: receipt.MoneyFromDecimal(price.Shift(-2)),
			Quantity:  qty,
		})
	}
	return items
}

func (c *Client) federalTaxTicket(ctx context.Context, qr string) (*ticketReceipt, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if c.sessionID == "" {
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
	}

	ticketID, err := c.ticketID(ctx, qr)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Ticket struct {
			Document struct {
				Receipt ticketReceipt `json:"receipt"`
			} `json:"document"`
		} `json:"ticket"`
	}
	if err := c.doJSON(ctx, http.MethodGet, ticketsURL+ticketID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Ticket.Document.Receipt, nil
}

func (c *Client) authenticate(ctx context.Context) error {
	log.Println("Authenticating with federal tax service")
	payload := map[string]string{
		"inn":           c.inn,
		"password":      c.password,
		"client_secret": c.secret,
	}
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, authURL, payload, &resp); err != nil {
		return fmt.Errorf("fts auth failed: %w", err)
	}
	if resp.SessionID == "" {
		return errors.New("fts auth returned no session")
	}
	c.sessionID = resp.SessionID
	return nil
}

func (c *Client) ticketID(ctx context.Context, qr string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, ticketURL, map[string]string{"qr": qr}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", ErrNoTicket
	}
	return resp.ID, nil
}

func (c *Client) backupOFDTicket(ctx context.Context, qr string) (*ticketReceipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backupOFDURL, strings.NewReader(qr))
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backup ofd returned %d", res.StatusCode)
	}

	var resp struct {
		Data struct {
			JSON ticketReceipt `json:"json"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, err
	}
	return &resp.Data.JSON, nil
}

// postJSON is doJSON without the FTS headers, for endpoints outside the tax
// service.
func (c *Client) postJSON(ctx context.Context, url string, payload, out interface{}) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Host", ftsHost)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Device-OS", deviceOS)
	req.Header.Set("clientVersion", clientVersion)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "ru-RU;q=1, en-US;q=0.9")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sessionID != "" {
		req.Header.Set("sessionId", c.sessionID)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
