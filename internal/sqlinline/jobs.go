package sqlinline

const QInsertJob = `--sql cb2436cb-7897-49c7-bc6c-8b2942463100
insert into generation_jobs(
  id,
  owner_id,
  kind,
  status,
  stage,
  progress,
  input_ref,
  working_ref,
  options,
  prompt,
  script,
  temp_result,
  output_ref,
  error_message,
  locale,
  last_advanced_at,
  created_at,
  updated_at
) values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  $5::text,
  $6::int,
  $7::text,
  '',
  coalesce($8::jsonb, '{}'::jsonb),
  '',
  null,
  null,
  '',
  '',
  $9::text,
  $10::timestamptz,
  $10::timestamptz,
  $10::timestamptz
);
`

const QSelectJob = `--sql 5150cef0-3cb3-4842-be66-479181e629bf
select
  id::text,
  owner_id,
  kind,
  status,
  stage,
  progress,
  input_ref,
  working_ref,
  options,
  prompt,
  script,
  temp_result,
  output_ref,
  error_message,
  locale,
  last_advanced_at,
  created_at,
  updated_at
from generation_jobs
where id = $1::uuid and owner_id = $2::text
limit 1;
`

// QUpdateJobAtStage is the stage compare-and-swap: it matches only while the
// job is still processing at the expected stage. error_message is write-once.
const QUpdateJobAtStage = `--sql cf092704-5d24-44a7-902d-080db962598c
update generation_jobs
set
  status = coalesce($4::text, status),
  stage = coalesce($5::text, stage),
  progress = coalesce($6::int, progress),
  working_ref = coalesce($7::text, working_ref),
  prompt = coalesce($8::text, prompt),
  script = coalesce($9::jsonb, script),
  temp_result = case when $10::boolean then null else coalesce($11::bytea, temp_result) end,
  output_ref = case when $12::boolean then '' else coalesce($13::text, output_ref) end,
  error_message = case when error_message = '' then coalesce($14::text, '') else error_message end,
  last_advanced_at = coalesce($15::timestamptz, now()),
  updated_at = coalesce($15::timestamptz, now())
where id = $1::uuid
  and owner_id = $2::text
  and status = 'processing'
  and stage = $3::text
returning
  id::text,
  owner_id,
  kind,
  status,
  stage,
  progress,
  input_ref,
  working_ref,
  options,
  prompt,
  script,
  temp_result,
  output_ref,
  error_message,
  locale,
  last_advanced_at,
  created_at,
  updated_at;
`

const QListJobsByOwner = `--sql 20d8b177-da0d-4628-9cc3-d2272c2e7bd0
select
  id::text,
  owner_id,
  kind,
  status,
  stage,
  progress,
  input_ref,
  working_ref,
  options,
  prompt,
  script,
  null::bytea as temp_result,
  output_ref,
  error_message,
  locale,
  last_advanced_at,
  created_at,
  updated_at
from generation_jobs
where owner_id = $1::text
order by created_at desc
limit $2::int offset $3::int;
`

const QDeleteJob = `--sql 93ea49a6-cd86-4968-b6e2-bfb834329bfa
delete from generation_jobs
where id = $1::uuid and owner_id = $2::text
returning
  id::text,
  owner_id,
  kind,
  status,
  stage,
  progress,
  input_ref,
  working_ref,
  options,
  prompt,
  script,
  null::bytea as temp_result,
  output_ref,
  error_message,
  locale,
  last_advanced_at,
  created_at,
  updated_at;
`

const QFailStalledJobs = `--sql b2637f33-3f43-4531-a359-0e0a0e10ca5b
update generation_jobs
set
  status = 'failed',
  error_message = case when error_message = '' then $2::text else error_message end,
  temp_result = null,
  last_advanced_at = now(),
  updated_at = now()
where status = 'processing'
  and last_advanced_at < $1::timestamptz
returning id::text;
`
