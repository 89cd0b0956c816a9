package scanning

import "context"

// ReceiptData contains the name and amount guessed from a receipt's OCR text
type ReceiptData struct {
	Name    string  `json:"expense_name"`
	Amount  float64 `json:"amount"`
	RawText string  `json:"raw_text"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt runs OCR over a receipt image/PDF and extracts a name and amount
	ScanReceipt(ctx context.Context, data []byte, contentType string) (*ReceiptData, error)
	// Close closes the scanner and releases resources
	Close() error
}

// Recognizer turns a single PNG page into raw text
type Recognizer interface {
	Recognize(ctx context.Context, png []byte) (string, error)
	Close() error
}

// RecognizerFunc adapts a plain function to the Recognizer interface
type RecognizerFunc func(ctx context.Context, png []byte) (string, error)

// Recognize calls f(ctx, png)
func (f RecognizerFunc) Recognize(ctx context.Context, png []byte) (string, error) {
	return f(ctx, png)
}

// Close is a no-op
func (f RecognizerFunc) Close() error {
	return nil
}
