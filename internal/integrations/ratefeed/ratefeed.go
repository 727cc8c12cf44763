// Package ratefeed fetches the central-bank benchmark rate used to price
// loan applications that do not carry an explicit annual rate.
package ratefeed

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/credana/lending-service/internal/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Client handles integration with the benchmark rate service
type Client struct {
	url    string
	margin decimal.Decimal
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new rate feed client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url:    cfg.RateFeedURL,
		margin: cfg.RateMargin,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// buildSOAPRequest creates a SOAP request for the key rate
func (c *Client) buildSOAPRequest() string {
	fromDate := time.Now().AddDate(0, 0, -30).Format("2006-01-02")
	toDate := time.Now().Format("2006-01-02")
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
		<soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
			<soap12:Body>
				<KeyRate xmlns="http://web.cbr.ru/">
					<fromDate>%s</fromDate>
					<ToDate>%s</ToDate>
				</KeyRate>
			</soap12:Body>
		</soap12:Envelope>`, fromDate, toDate)
}

// sendRequest sends the SOAP request to the rate service
func (c *Client) sendRequest(soapRequest string) ([]byte, error) {
	req, err := http.NewRequest("POST", c.url, bytes.NewBuffer([]byte(soapRequest)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://web.cbr.ru/KeyRate")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	c.log.Debugf("rate feed XML response: %s", string(body))

	return body, nil
}

// parseXMLResponse extracts the latest key rate from the XML response
func (c *Client) parseXMLResponse(rawBody []byte) (decimal.Decimal, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse XML: %v", err)
	}

	krElements := doc.FindElements("//diffgram/KeyRate/KR")
	if len(krElements) == 0 {
		return decimal.Zero, fmt.Errorf("no key rate data found in XML")
	}

	rateElement := krElements[0].FindElement("./Rate")
	if rateElement == nil {
		return decimal.Zero, fmt.Errorf("rate element not found in XML")
	}

	rate, err := decimal.NewFromString(rateElement.Text())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse rate: %v", err)
	}

	return rate, nil
}

// BaseRate retrieves the current benchmark rate plus the lending margin,
// as an annual percentage.
func (c *Client) BaseRate() (decimal.Decimal, error) {
	body, err := c.sendRequest(c.buildSOAPRequest())
	if err != nil {
		return decimal.Zero, err
	}

	rate, err := c.parseXMLResponse(body)
	if err != nil {
		return decimal.Zero, err
	}

	rate = rate.Add(c.margin)
	c.log.Infof("Retrieved base rate: %s%% (including %s%% margin)", rate.StringFixed(2), c.margin.StringFixed(2))
	return rate, nil
}
