package service

import (
	"fmt"
	"strings"
)

// 生成流水线使用的系统提示词

const courseDescriptionSystemPrompt = `You write catalogue copy for self-paced online courses.
Given the course subject, the learner's goal, experience level and time commitment,
produce a short engaging summary (at most two sentences, about 30 words) and a
detailed description that explains what the learner will be able to do afterwards.`

const levelsSystemPrompt = `You are a curriculum designer. Split the course into 4 to 8 levels
that build on each other, from foundations to mastery. Each level needs a concise title,
its position starting at 1, and a description of what the learner achieves in it.
Fit the number of levels to the learner's time commitment.`

const sectionsSystemPrompt = `You are a curriculum designer working on a single level of a course.
Split the level into 3 to 6 focused sections. Each section covers one idea that can be
learned in a single sitting. Give every section a title, its position starting at 1
and a short description.`

const metadataSystemPrompt = `You summarise a finished course outline for a course catalogue.
Return 5 to 8 key topics, 3 to 5 prerequisites the learner should already know and
3 to 4 follow-up courses that would naturally come next.`

const searchQuerySystemPrompt = `You turn a lesson outline into one web search query.
Return only the query: a few specific keywords, no quotes, no explanation.`

const researchSystemPrompt = `You are an educational researcher. Using the search results provided,
write concise markdown notes with current, accurate information about the section topic.
Keep the notes short and to the point. Do not invent facts that are not supported by the results.`

const blocksSystemPrompt = `You write interactive lessons made of small blocks.
Produce 6 to 10 blocks for the section. Alternate explanation and practice:
"content" blocks teach one idea in markdown, "question" blocks check it.
Question blocks must set questionType to one of select, multiselect, text or sort,
must include correctAnswer, and should include a hint and an explanation.
For select and multiselect give the options; a multiselect correctAnswer lists the
correct options separated by commas. For sort give the items in options and the
correct order, comma separated, in correctAnswer. The lesson must end with a content block.`

const summarizeSystemPrompt = `You are a concise technical summarizer. Summarize the given text
into one or two short sentences that capture only the core concept.`

const flashcardSystemPrompt = `You generate study flashcards from source material.
Each card tests one concept with a clear, self-contained question and a concise answer.
questionType is one of multiple_choice, true_false or text (put multiple choice options in the question).
difficulty is one of easy, medium or hard; aim for roughly half easy, a third medium and the rest hard,
ordered from easy to hard. Add a short explanation and, when useful, a sourceExcerpt quoting the material.`

const answerSystemPrompt = `You verify learners' answers. Compare the learner's answer with the
correct answer and decide whether they mean the same thing even if worded differently.
Be lenient with spelling and phrasing, strict with factual accuracy.`

// 结构化输出示例，拼接进提示词

const courseDescriptionSchema = `{"summary": "string", "description": "string"}`

const levelsSchema = `{"levels": [{"title": "string", "order": 1, "description": "string"}]}`

const sectionsSchema = `{"sections": [{"title": "string", "order": 1, "description": "string"}]}`

const metadataSchema = `{"topics": ["string"], "prerequisites": ["string"], "nextSteps": ["string"]}`

const blocksSchema = `{"blocks": [
  {"type": "content", "content": "markdown", "order": 1, "sources": ["https://..."]},
  {"type": "question", "content": "prompt", "order": 2, "questionType": "select",
   "options": ["a", "b"], "correctAnswer": "a", "hint": "string", "explanation": "string"}
]}`

const flashcardSchema = `{"summary": "string", "cards": [{"question": "string", "answer": "string",
  "questionType": "text", "difficulty": "easy", "explanation": "string", "sourceExcerpt": "string", "orderIndex": 0}]}`

const answerSchema = `{"isCorrect": true, "explanation": "string", "confidence": 0.9}`

func courseBrief(in CourseInput) string {
	return fmt.Sprintf("Subject: %s\nLearning goal: %s\nExperience level: %s\nTime commitment: %s",
		in.Subject, in.LearningGoal, in.ExperienceLevel, in.TimeCommitment)
}

func levelsPrompt(in CourseInput) string {
	return courseBrief(in)
}

func sectionsPrompt(in CourseInput, level OutlineItem) string {
	return fmt.Sprintf("Course subject: %s\nExperience level: %s\n\nLevel %d: %s\n%s\n\nGenerate the sections of this level.",
		in.Subject, in.ExperienceLevel, level.Order, level.Title, level.Description)
}

func metadataPrompt(in CourseInput, levels []OutlineItem) string {
	var b strings.Builder
	b.WriteString(courseBrief(in))
	b.WriteString("\n\nLevels:\n")
	for _, l := range levels {
		fmt.Fprintf(&b, "- %s: %s\n", l.Title, l.Description)
	}
	return b.String()
}

func researchPrompt(query, results string) string {
	return fmt.Sprintf("Topic: %s\n\nSearch results:\n%s", query, results)
}

func searchQueryPrompt(in SectionBrief) string {
	return fmt.Sprintf("Section: %s\n%s\nCourse subject: %s\nExperience level: %s",
		in.Title, in.Description, in.Subject, in.ExperienceLevel)
}

func blocksPrompt(in SectionBrief, research *Research) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Section: %s\n%s\nCourse subject: %s\nExperience level: %s\n",
		in.Title, in.Description, in.Subject, in.ExperienceLevel)
	if research != nil && research.Notes != "" {
		b.WriteString("\nResearch notes:\n")
		b.WriteString(research.Notes)
		b.WriteString("\n")
		if len(research.Sources) > 0 {
			b.WriteString("\nSources:\n")
			for _, s := range research.Sources {
				b.WriteString("- " + s + "\n")
			}
		}
	}
	return b.String()
}

func flashcardPrompt(source string, target int) string {
	return fmt.Sprintf("Generate about %d flashcards and a one paragraph summary of the material.\n\nSource material:\n%s",
		target, source)
}

func answerPrompt(question, correct, given string) string {
	return fmt.Sprintf("Question: %s\n\nCorrect answer: %s\n\nLearner's answer: %s", question, correct, given)
}
