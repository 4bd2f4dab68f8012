package formatting

import "github.com/Freeeeeet/lesson_booking/internal/model"

// StatusDisplay представляет отображение статуса занятия
type StatusDisplay struct {
	Emoji string
	Text  string
}

// GetLessonStatusDisplay возвращает emoji и текст для статуса занятия
func GetLessonStatusDisplay(status model.LessonStatus) StatusDisplay {
	displays := map[model.LessonStatus]StatusDisplay{
		model.LessonStatusPending:              {"⏳", "Пробное, время не выбрано"},
		model.LessonStatusBooked:               {"🟢", "Запланировано"},
		model.LessonStatusCompleted:            {"✔️", "Проведено"},
		model.LessonStatusCanceledByCustomer:   {"❌", "Отменено клиентом"},
		model.LessonStatusCanceledByInstructor: {"🚫", "Отменено преподавателем"},
		model.LessonStatusRebooked:             {"🔁", "Перенесено"},
	}

	if display, ok := displays[status]; ok {
		return display
	}

	return StatusDisplay{"❓", "Неизвестно"}
}
