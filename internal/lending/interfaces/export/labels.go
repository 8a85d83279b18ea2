package export

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	lending "laptop-lending/internal/lending/domain"
)

// LabelConfig lays out an A4 label sheet.
type LabelConfig struct {
	Cols       int
	Rows       int
	MarginTop  float64
	MarginLeft float64
	GapX       float64
	GapY       float64
}

// DefaultLabelConfig is a 3x8 sheet.
func DefaultLabelConfig() LabelConfig {
	return LabelConfig{Cols: 3, Rows: 8, MarginTop: 10, MarginLeft: 8, GapX: 3, GapY: 2}
}

// LabelContent is the payload encoded in a device QR code.
func LabelContent(device lending.Device) string {
	return "lending:device:" + device.ID
}

// LabelPNG renders the device QR code as a PNG of size pixels.
func LabelPNG(device lending.Device, size int) ([]byte, error) {
	if device.ID == "" {
		return nil, lending.ErrEmptyID
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(LabelContent(device), qrcode.Medium, size)
}

// BuildLabelsPDF renders one QR label per device.
func BuildLabelsPDF(devices []lending.Device, cfg LabelConfig) ([]byte, error) {
	if cfg.Cols <= 0 || cfg.Rows <= 0 {
		return nil, errors.New("labels: cols and rows must be positive")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 10)

	pageWidth, pageHeight := 210.0, 297.0
	labelW := (pageWidth - cfg.MarginLeft*2 - float64(cfg.Cols-1)*cfg.GapX) / float64(cfg.Cols)
	labelH := (pageHeight - cfg.MarginTop*2 - float64(cfg.Rows-1)*cfg.GapY) / float64(cfg.Rows)
	labelsPerPage := cfg.Cols * cfg.Rows

	if len(devices) == 0 {
		pdf.AddPage()
	}
	for i, device := range devices {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}
		indexOnPage := i % labelsPerPage
		x := cfg.MarginLeft + float64(indexOnPage%cfg.Cols)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(indexOnPage/cfg.Cols)*(labelH+cfg.GapY)

		png, err := LabelPNG(device, 256)
		if err != nil {
			return nil, err
		}
		imgName := fmt.Sprintf("qr_%d", i)
		imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		pdf.RegisterImageOptionsReader(imgName, imgOptions, bytes.NewReader(png))

		qrSize := labelH * 0.8
		if qrSize > labelW/2 {
			qrSize = labelW / 2
		}
		pdf.ImageOptions(imgName, x+1, y+(labelH-qrSize)/2, qrSize, qrSize, false, imgOptions, 0, "")

		textX := x + qrSize + 2
		textW := labelW - qrSize - 3
		pdf.SetXY(textX, y+3)
		pdf.SetFontSize(8)
		pdf.CellFormat(textW, 4, device.Brand+" "+device.Model, "", 2, "L", false, 0, "")
		pdf.SetFontSize(6)
		pdf.CellFormat(textW, 3, fmt.Sprintf("%dGB / %dGB RAM", device.StorageGB, device.MemoryGB), "", 2, "L", false, 0, "")
		pdf.CellFormat(textW, 3, "Tier "+string(device.Tier), "", 2, "L", false, 0, "")
		pdf.CellFormat(textW, 3, device.ID, "", 2, "L", false, 0, "")
	}
	if err := pdf.Error(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
