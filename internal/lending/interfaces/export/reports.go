package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	lendingapp "laptop-lending/internal/lending/application"
	lending "laptop-lending/internal/lending/domain"
)

const timeLayout = "2006-01-02 15:04"

// Lookup resolves display names for reservation rows. Missing entries fall back to ids.
type Lookup struct {
	Devices    map[string]lending.Device
	Requesters map[string]lending.Requester
}

// NewLookup indexes devices and requesters by id.
func NewLookup(devices []lending.Device, requesters []lending.Requester) Lookup {
	lookup := Lookup{
		Devices:    make(map[string]lending.Device, len(devices)),
		Requesters: make(map[string]lending.Requester, len(requesters)),
	}
	for _, device := range devices {
		lookup.Devices[device.ID] = device
	}
	for _, requester := range requesters {
		lookup.Requesters[requester.ID] = requester
	}
	return lookup
}

func (l Lookup) deviceLabel(id string) string {
	if device, ok := l.Devices[id]; ok {
		return device.Brand + " " + device.Model
	}
	return id
}

func (l Lookup) requesterName(id string) string {
	if requester, ok := l.Requesters[id]; ok && requester.Name != "" {
		return requester.Name
	}
	return id
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// BuildReservationsPDF renders a reservation report.
func BuildReservationsPDF(reservations []lending.Reservation, lookup Lookup, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Device Reservations")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Reservations: %d", len(reservations)))
	pdf.Ln(8)

	widths := []float64{30, 55, 55, 18, 26, 36, 36}
	headers := []string{"Requester", "Name", "Device", "Tier", "Status", "Created", "Ended"}
	pdf.SetFont("Arial", "B", 9)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 6, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, res := range reservations {
		row := []string{
			res.RequesterID,
			lookup.requesterName(res.RequesterID),
			lookup.deviceLabel(res.DeviceID),
			string(res.Tier),
			string(res.Status),
			formatTime(res.CreatedAt),
			formatTime(res.EndedAt),
		}
		for i, value := range row {
			pdf.CellFormat(widths[i], 6, value, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReservationsXLSX renders reservations into a workbook with one row per reservation.
func BuildReservationsXLSX(reservations []lending.Reservation, lookup Lookup) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "reservations"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"Reservation", "Requester", "Name", "Device", "Device ID", "Tier", "Status", "Created", "Ended"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}
	for i, res := range reservations {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), res.ID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), res.RequesterID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), lookup.requesterName(res.RequesterID))
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), lookup.deviceLabel(res.DeviceID))
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), res.DeviceID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), string(res.Tier))
		_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), string(res.Status))
		_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", row), formatTime(res.CreatedAt))
		_ = f.SetCellValue(sheet, fmt.Sprintf("I%d", row), formatTime(res.EndedAt))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildInventoryXLSX renders devices and a per-tier summary.
func BuildInventoryXLSX(devices []lending.Device, stats lendingapp.Stats) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	devicesSheet := "devices"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(devicesSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Tier")
	_ = f.SetCellValue(summarySheet, "B1", "Available")
	_ = f.SetCellValue(summarySheet, "C1", "Loaned")
	_ = f.SetCellValue(summarySheet, "D1", "Queued")
	_ = f.SetCellValue(summarySheet, "E1", "Requesters")
	_ = f.SetCellValue(summarySheet, "F1", "Served")
	for i, tier := range lending.Tiers() {
		row := i + 2
		ts := stats.Tiers[tier]
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), string(tier))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), ts.Available)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), ts.Loaned)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("D%d", row), ts.Queued)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("E%d", row), ts.Requesters)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("F%d", row), ts.Served)
	}

	_ = f.SetCellValue(devicesSheet, "A1", "ID")
	_ = f.SetCellValue(devicesSheet, "B1", "Brand")
	_ = f.SetCellValue(devicesSheet, "C1", "Model")
	_ = f.SetCellValue(devicesSheet, "D1", "Storage (GB)")
	_ = f.SetCellValue(devicesSheet, "E1", "Memory (GB)")
	_ = f.SetCellValue(devicesSheet, "F1", "Tier")
	_ = f.SetCellValue(devicesSheet, "G1", "State")
	_ = f.SetCellValue(devicesSheet, "H1", "Registered")
	for i, device := range devices {
		row := i + 2
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("A%d", row), device.ID)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("B%d", row), device.Brand)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("C%d", row), device.Model)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("D%d", row), device.StorageGB)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("E%d", row), device.MemoryGB)
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("F%d", row), string(device.Tier))
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("G%d", row), string(device.State))
		_ = f.SetCellValue(devicesSheet, fmt.Sprintf("H%d", row), formatTime(device.CreatedAt))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
