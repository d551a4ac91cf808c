package app

import (
	"github.com/rs/zerolog/log"

	"telegram-quiz-bot/internal/domain"
)

// grade turns the recorded answers into graded Answer rows, in question order.
func grade(quiz domain.Quiz, session *Session) []domain.Answer {
	answers := make([]domain.Answer, 0, len(session.Answers))
	for _, questionID := range session.QuestionOrder {
		raw, ok := session.Answers[questionID]
		if !ok {
			continue
		}
		question, ok := quiz.Question(questionID)
		if !ok {
			log.Warn().Int64("attemptID", session.AttemptID).Int64("questionID", questionID).Msg("answer for unknown question dropped")
			continue
		}
		answers = append(answers, gradeAnswer(session.AttemptID, question, raw))
	}
	return answers
}

// gradeAnswer scores a single answer. Only multiple choice is auto-graded;
// text and boolean answers are stored for manual review and earn nothing.
func gradeAnswer(attemptID int64, question domain.Question, raw domain.RawAnswer) domain.Answer {
	answer := domain.Answer{
		AttemptID:  attemptID,
		QuestionID: question.ID,
	}

	if question.Type != domain.QuestionMultipleChoice {
		text := raw.Text
		answer.TextAnswer = &text
		return answer
	}

	opt, ok := question.Option(raw.OptionID)
	if !ok {
		if raw.Text != "" {
			text := raw.Text
			answer.TextAnswer = &text
		}
		return answer
	}
	optionID := opt.ID
	answer.SelectedOptionID = &optionID
	if opt.IsCorrect {
		answer.IsCorrect = true
		answer.PointsEarned = question.Weight()
	}
	return answer
}

func totalScore(answers []domain.Answer) float64 {
	total := 0.0
	for _, a := range answers {
		total += a.PointsEarned
	}
	return total
}

func percentage(score, maxScore float64) float64 {
	if maxScore == 0 {
		return 0
	}
	return score / maxScore * 100
}
