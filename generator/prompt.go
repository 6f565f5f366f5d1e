package generator

// Prompt 表示发送给 LLM 的消息集合。
type Prompt struct {
	// Model overrides the client's default model when set.
	Model   string
	System  string
	User    string
	Options Options
}

// Options are the sampling knobs sent with every call. Seed -1 asks the
// backend for a random seed.
type Options struct {
	NumCtx        int
	NumPredict    int
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	Seed          int
	Clear         bool
}

func baseOptions() Options {
	return Options{
		NumCtx:        4096,
		NumPredict:    2000,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
		Seed:          -1,
		Clear:         true,
	}
}

// PostOptions 发帖生成的采样参数。
func PostOptions() Options {
	o := baseOptions()
	o.Temperature = 0.9
	return o
}

// SummaryOptions 摘要生成的采样参数，温度更低。
func SummaryOptions() Options {
	o := baseOptions()
	o.Temperature = 0.2
	return o
}

const postPersona = "You are a social media influencer who creates fun, engaging posts.\n" +
	"IMPORTANT: NEVER include your thinking process, analysis, or explanations.\n" +
	"JUST write the post directly with lots of emojis and enthusiasm!"

const aboutContentRules = "\n\nIMPORTANT FORMATTING RULES:\n" +
	"1. Use LOTS of EMOJIS (at least 5-10) 🎨\n" +
	"2. Use line breaks between paragraphs\n" +
	"3. Use CAPS for emphasis\n" +
	"4. NO thinking or analysis\n" +
	"5. JUST THE POST!\n" +
	"6. Remember: You are creating a post ABOUT this content, not AS the author"

const freePostRules = "IMPORTANT FORMATTING RULES:\n" +
	"1. Use LOTS of EMOJIS (at least 5-10) 🎨\n" +
	"2. Use line breaks between paragraphs\n" +
	"3. Use CAPS for emphasis\n" +
	"4. NO thinking or analysis\n" +
	"5. NO hashtags at the end\n" +
	"6. NO explanations\n" +
	"7. JUST THE POST!"

const summarySystem = `The user will provide the text of a blog post that they would like to summarize.
Please respond with a JSON object containing exactly these fields:
- "summary": A 32 word or less summary of the post
- "category": A one or two word category for the post
- "category_description": a short description of the category
Respond using this JSON schema:
{
    "summary": {"type": "string"},
    "category": {"type": "string"},
    "category_description": {"type": "string"}
}
Return a JSON response. The response must:
- Be valid JSON that can be parsed
- Include fields: "summary", "category", "category_description"
- Have no additional text outside the JSON
- Do NOT include markdown code blocks (` + "```json" + `) or comments`

// BuildPostPrompt 生成发帖提示词。With fromPage set, content is the text of
// a fetched page and the post is written about it; otherwise content is the
// operator's topic.
func BuildPostPrompt(model, content string, fromPage bool) Prompt {
	var user string
	if fromPage {
		user = "Create a social media post ABOUT this content (you are NOT the author of this content):\n" +
			content + aboutContentRules
	} else {
		user = "Write one single social media post"
		if content != "" {
			user += " about: " + content
		}
		user += ".\n" + freePostRules
	}
	return Prompt{
		Model:   model,
		System:  postPersona,
		User:    user,
		Options: PostOptions(),
	}
}

// BuildSummaryPrompt 生成摘要提示词。
func BuildSummaryPrompt(model, content string) Prompt {
	return Prompt{
		Model:   model,
		System:  summarySystem,
		User:    "Summarize this into a SINGLE short 256 character long sentence: " + content,
		Options: SummaryOptions(),
	}
}
