package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"uborka/internal/database"
	"uborka/internal/models"
	"uborka/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	statusSuccess = "✅"
	statusPending = "⏳"
	statusError   = "❌"
)

// Exporter строит Excel файлы с расписанием и подписками
type Exporter struct {
	db     *database.DB
	path   string
	logger *zerolog.Logger
}

func NewExporter(db *database.DB, path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		db:     db,
		path:   path,
		logger: logger,
	}
}

// ExportSchedule создает Excel файл с сеткой расписания: клинеры по строкам,
// даты по колонкам
func (e *Exporter) ExportSchedule(ctx context.Context, startDate, endDate time.Time) (string, error) {
	if endDate.Before(startDate) {
		return "", fmt.Errorf("end date %s is before start date %s",
			endDate.Format("2006-01-02"), startDate.Format("2006-01-02"))
	}

	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	daily, err := e.db.GetDailySchedule(ctx, startDate, endDate)
	if err != nil {
		return "", fmt.Errorf("error getting schedule: %v", err)
	}

	cleaners := activeCleaners(e.db.GetCleaners())

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "График"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	// Заголовок периода
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Период: %s - %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006")))

	dateHeaders := e.writeDateHeaders(f, sheetName, startDate, endDate)
	e.writeCleanerHeaders(f, sheetName, cleaners)
	e.writeScheduleData(f, sheetName, daily, cleaners, dateHeaders)

	_ = f.SetColWidth(sheetName, "A", "A", 25)
	for i := 'B'; i <= 'Z'; i++ {
		_ = f.SetColWidth(sheetName, string(i), string(i), 20)
	}

	// Объединяем ячейку для заголовка периода
	lastCol := getLastColumn(len(dateHeaders) + 1)
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")

	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", style)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("schedule_%s_to_%s.xlsx",
		startDate.Format("2006-01-02"),
		endDate.Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func (e *Exporter) writeDateHeaders(f *excelize.File, sheetName string, startDate, endDate time.Time) map[string]int {
	col := 2
	currentDate := startDate
	dateHeaders := make(map[string]int)

	for !currentDate.After(endDate) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		dateStr := currentDate.Format("02.01")
		_ = f.SetCellValue(sheetName, cell, dateStr)
		dateHeaders[currentDate.Format("2006-01-02")] = col

		style, _ := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
			Font:      &excelize.Font{Bold: true},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		_ = f.SetCellStyle(sheetName, cell, cell, style)

		col++
		currentDate = currentDate.AddDate(0, 0, 1)
	}
	return dateHeaders
}

func (e *Exporter) writeCleanerHeaders(f *excelize.File, sheetName string, cleaners []models.Cleaner) {
	row := 3
	for _, cleaner := range cleaners {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheetName, cell, cleaner.Name)

		style, _ := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
			Font: &excelize.Font{Bold: true},
		})
		_ = f.SetCellStyle(sheetName, cell, cell, style)

		row++
	}
}

func (e *Exporter) writeScheduleData(
	f *excelize.File, sheetName string,
	daily map[string][]*models.Occurrence,
	cleaners []models.Cleaner,
	dateHeaders map[string]int,
) {
	for dateKey, occs := range daily {
		col, exists := dateHeaders[dateKey]
		if !exists {
			continue
		}

		byCleaner := make(map[int64][]*models.Occurrence)
		for _, occ := range occs {
			byCleaner[occ.CleanerID] = append(byCleaner[occ.CleanerID], occ)
		}

		row := 3
		for _, cleaner := range cleaners {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			visits := filterActiveOccurrences(byCleaner[cleaner.ID])

			var cellValue string
			if len(visits) > 0 {
				for _, visit := range visits {
					icon := getStatusIcon(visit.Status)
					cellValue += fmt.Sprintf("%s %s клиент %d\n", icon, visit.ScheduledAt.Format("15:04"), visit.ClientID)
					if visit.Notes != "" {
						cellValue += fmt.Sprintf("   💬 %s\n", visit.Notes)
					}
				}
				cellValue += fmt.Sprintf("\nВизитов: %d", len(visits))
			} else {
				cellValue = "Свободно"
			}

			_ = f.SetCellValue(sheetName, cell, cellValue)

			styleID, err := e.getCellStyle(f, visits)
			if err == nil {
				_ = f.SetCellStyle(sheetName, cell, cell, styleID)
			}
			row++
		}
	}
}

func getStatusIcon(status string) string {
	switch status {
	case models.StatusCompleted, models.StatusCleanerCompleted:
		return statusSuccess
	case models.StatusScheduled:
		return statusPending
	case models.StatusCancelled:
		return statusError
	default:
		return "❓"
	}
}

// getCellStyle возвращает стиль ячейки
func (e *Exporter) getCellStyle(f *excelize.File, visits []*models.Occurrence) (int, error) {
	fill := func(color string) (int, error) {
		return f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{
				Horizontal: "left",
				Vertical:   "top",
				WrapText:   true,
			},
		})
	}

	// Нет визитов - без заливки
	if len(visits) == 0 {
		return fill("#FFFFFF")
	}

	// Есть незакрытые визиты - желтый
	for _, visit := range visits {
		if visit.Status == models.StatusScheduled {
			return fill("#FFEB9C")
		}
	}

	// Все визиты закрыты - зеленый
	return fill("#C6EFCE")
}

// filterActiveOccurrences отбрасывает отмененные визиты
func filterActiveOccurrences(occs []*models.Occurrence) []*models.Occurrence {
	var active []*models.Occurrence
	for _, occ := range occs {
		if occ.Status != models.StatusCancelled {
			active = append(active, occ)
		}
	}
	return active
}

func activeCleaners(cleaners []models.Cleaner) []models.Cleaner {
	active := make([]models.Cleaner, 0, len(cleaners))
	for _, c := range cleaners {
		if c.IsActive {
			active = append(active, c)
		}
	}
	return active
}

// getLastColumn возвращает последнюю колонку для объединения ячеек
func getLastColumn(colCount int) string {
	// Базовые колонки A-Z
	if colCount <= 26 {
		return string(rune('A' + colCount - 1))
	}

	// Для большего количества колонок (AA, AB, etc.)
	firstChar := string(rune('A' + (colCount-1)/26 - 1))
	secondChar := string(rune('A' + (colCount-1)%26))
	return firstChar + secondChar
}

// ExportSubscriptions создает Excel файл со сводкой по всем сериям
func (e *Exporter) ExportSubscriptions(ctx context.Context) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	roots, err := e.db.ListSeriesRoots(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting series roots: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Подписки"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Клиент", "Клинер", "Частота", "Статус", "Всего визитов",
		"Завершено", "Впереди", "Следующий визит", "Выручка", "Оплачено",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
	}

	now := time.Now()
	for i, root := range roots {
		parent, children, err := e.db.GetSeries(ctx, root.ID)
		if err != nil {
			e.logger.Error().Err(err).Int64("series_id", root.ID).Msg("Error loading series for export")
			continue
		}

		summary := schedule.Summarize(parent, children, now)
		if parent.SeriesState == models.SeriesPaused && summary.Status == models.SubscriptionActive {
			summary.Status = models.SubscriptionPaused
		}

		next := ""
		if summary.NextOccurrence != nil {
			next = summary.NextOccurrence.Format("02.01.2006 15:04")
		}

		row := i + 2
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), parent.ID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), parent.ClientID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), parent.CleanerID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), parent.Frequency)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), summary.Status)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), summary.TotalCount)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), summary.CompletedCount)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), summary.UpcomingCount)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), next)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), summary.TotalRevenue)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("K%d", row), summary.PaidRevenue)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 10)
	_ = f.SetColWidth(sheetName, "B", "D", 12)
	_ = f.SetColWidth(sheetName, "E", "E", 14)
	_ = f.SetColWidth(sheetName, "F", "H", 14)
	_ = f.SetColWidth(sheetName, "I", "I", 20)
	_ = f.SetColWidth(sheetName, "J", "K", 12)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("subscriptions_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Subscriptions Excel file created")
	return filePath, nil
}
