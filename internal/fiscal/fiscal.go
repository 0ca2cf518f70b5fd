// Package fiscal stamps committed sales with NFC-e consumer-invoice metadata:
// a 44-digit access key and the SEFAZ consultation QR code URL.
package fiscal

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

const (
	accessKeyDigits = 44
	consultaBaseURL = "https://www.sefaz.rs.gov.br/nfce/consulta"
)

// NewAccessKey returns a 44-digit NFC-e access key.
func NewAccessKey() string {
	buf := make([]byte, accessKeyDigits)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			buf[i] = '0'
			continue
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf)
}

// QRCodeURL builds the consultation URL embedded in the receipt QR code. The
// query parameter carries the access key, version/environment markers and the
// base64-encoded sale total in reais.
func QRCodeURL(accessKey string, totalCents int64) string {
	total := fmt.Sprintf("%.2f", float64(totalCents)/100)
	encoded := base64.StdEncoding.EncodeToString([]byte(total))
	return fmt.Sprintf("%s?p=%s|2|1|1|%s", consultaBaseURL, accessKey, encoded)
}
