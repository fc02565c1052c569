// Package ticketpdf renders an issued ticket as a one-page PDF with its QR code.
package ticketpdf

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"
)

const qrSize = 512

// Ticket holds what is printed on the page. QRCode is the value encoded in
// the QR image and checked at the door.
type Ticket struct {
	PurchaseID         uint
	TicketID           uint
	EventID            uint
	TicketTypeName     string
	AttendeeName       string
	AttendeeEmail      string
	NumberInPurchase   int
	NumberInTicketType int
	QRCode             string
	IssuedAt           time.Time
}

// Render writes t to w as an A5 PDF.
func Render(w io.Writer, t Ticket) error {
	png, err := qrcode.Encode(t.QRCode, qrcode.Medium, qrSize)
	if err != nil {
		return fmt.Errorf("encode qr code: %w", err)
	}

	pdf := fpdf.New("P", "mm", "A5", "")
	pdf.SetTitle(fmt.Sprintf("Ticket %d", t.TicketID), true)
	pdf.SetCreator("ticketing-service", true)
	if !t.IssuedAt.IsZero() {
		pdf.SetCreationDate(t.IssuedAt)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	width := pageW - left - right

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(width, 12, tr(t.TicketTypeName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(width, 7, fmt.Sprintf("Event #%d", t.EventID), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	line := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(40, 7, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(width-40, 7, tr(value), "", 1, "L", false, 0, "")
	}
	line("Attendee", t.AttendeeName)
	if t.AttendeeEmail != "" {
		line("Email", t.AttendeeEmail)
	}
	line("Purchase", fmt.Sprintf("#%d", t.PurchaseID))
	line("Ticket", fmt.Sprintf("%d of purchase, %d of type", t.NumberInPurchase, t.NumberInTicketType))
	if !t.IssuedAt.IsZero() {
		line("Issued", t.IssuedAt.UTC().Format("2006-01-02 15:04 MST"))
	}

	const img = "qr"
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(img, opts, bytes.NewReader(png))
	side := 80.0
	pdf.ImageOptions(img, (pageW-side)/2, pdf.GetY()+8, side, side, false, opts, 0, "")
	pdf.SetY(pdf.GetY() + side + 10)
	pdf.SetFont("Courier", "", 9)
	pdf.CellFormat(width, 5, t.QRCode, "", 1, "C", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render ticket pdf: %w", err)
	}
	return nil
}
