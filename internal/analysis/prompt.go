package analysis

const rubric = `You review transcripts of outbound phone calls placed by a voice assistant.
Return a single JSON object with exactly these keys:
  "summary": one or two sentences describing what happened on the call.
  "quality_score": number from 0 to 100 rating how well the assistant handled the call
    (clarity, relevance, politeness, whether the caller's needs were addressed).
  "intent": short label for what the person wanted (e.g. "interested", "not interested",
    "callback requested", "information request", "wrong number").
  "outcome": short label for how the call ended (e.g. "appointment booked", "callback scheduled",
    "declined", "no decision", "hung up").
  "callback_time": when the person asked to be called back, as stated, or "" if not mentioned.
  "appointment_time": the appointment agreed on, as stated, or "" if none.
Lines starting with "user:" are the person; lines starting with "assistant:" are the voice assistant.
Respond with JSON only.`
