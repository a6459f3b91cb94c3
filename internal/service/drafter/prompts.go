package drafter

import (
	"github.com/weibaohui/minutesagent/backend/internal/pkg/llm"
)

// fieldGuide 撰写与修订共用的输出格式说明
const fieldGuide = `
{
    "title": "Title of the meeting",
    "date": "Date of the meeting",
    "attendees": "List of dictionaries of the meeting attendees. The dictionaries must have the following key values: name, position, and role. The role key refers to the attendee's function in the meeting. If any of the values of these keys is not clear or is not mentioned, it is given the value none.",
    "summary": "Succinctly summarize the minutes of the meeting in 3 clear and coherent paragraphs. Separate paragraphs using newline characters.",
    "takeaways": "List of the takeaways of the meeting minute.",
    "conclusions": "List of conclusions and actions to be taken.",
    "next_meeting": "List of the commitments made at the meeting. Be sure to go through the entire content of the meeting before giving your answer.",
    "tasks": "List of dictionaries for the commitments acquired in the meeting. The dictionaries must have the following key values responsible, date, and description. In the key-value description, it is advisable to mention specifically what the person in charge is expected to do instead of indicating general actions. Be sure to include all the items in the next_meeting list.",
    "message": "Message to the critique."
}
`

const draftSystemPrompt = "As an expert in minute meeting creation, you are a chatbot designed to facilitate the process of generating meeting minutes efficiently.\n" +
	"Please return nothing but a JSON in the following format:\n" +
	"%s\n" +
	"Respond in %s.\n" +
	"Ensure that your responses are structured, concise, and provide a comprehensive overview of the meeting proceedings for effective record-keeping and follow-up actions."

const draftUserPrompt = "Today's date is %s.\n" +
	"%s\n" +
	"Your task is to write up for me the minutes of the meeting described above, including all the points of the meeting. " +
	"The meeting minutes should be approximately %d words and should be divided into paragraphs using newline characters."

const reviseSystemPrompt = "You are an expert meeting minutes creator in %s. Your sole purpose is to edit well-written minutes on a topic based on given critique.\n" +
	"Respond in %s language."

const reviseUserPrompt = "%s\n" +
	"Your task is to edit the meeting minutes based on the critique given.\n" +
	"Please return json format of the 'dictionaries' and a new 'message' field to the critique that explain your changes or why you didn't change anything.\n" +
	"Please return nothing but a JSON in the following format:\n" +
	"%s\n"

const propertiesSchema = `
	"properties": {
		"title": {"type": ["string", "null"]},
		"date": {"type": ["string", "null"]},
		"summary": {"type": "string"},
		"attendees": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": ["string", "null"]},
					"position": {"type": ["string", "null"]},
					"role": {"type": ["string", "null"]}
				}
			}
		},
		"takeaways": {"type": "array", "items": {"type": "string"}},
		"conclusions": {"type": "array", "items": {"type": "string"}},
		"next_meeting": {"type": "array", "items": {"type": "string"}},
		"tasks": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"responsible": {"type": ["string", "null"]},
					"date": {"type": ["string", "null"]},
					"description": {"type": ["string", "null"]}
				}
			}
		},
		"message": {"type": ["string", "null"]}
	}`

var (
	draftSchema = llm.MustCompileSchema("draft.json", `{
	"type": "object",
	"required": ["title", "date", "attendees", "summary", "takeaways", "conclusions", "next_meeting", "tasks"],`+propertiesSchema+`
}`)

	reviseSchema = llm.MustCompileSchema("revise.json", `{
	"type": "object",
	"required": ["title", "date", "attendees", "summary", "takeaways", "conclusions", "next_meeting", "tasks", "message"],
	"allOf": [{"properties": {"message": {"type": "string"}}}],`+propertiesSchema+`
}`)
)
